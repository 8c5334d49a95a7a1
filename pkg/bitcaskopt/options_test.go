package bitcaskopt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesOptionsOverDefault(t *testing.T) {
	o := New(WithDataDir("/tmp/x"), WithMaxFileSize(1024), WithStrictCRC(true))
	require.Equal(t, "/tmp/x", o.DataDir)
	require.EqualValues(t, 1024, o.MaxFileSize)
	require.True(t, o.StrictCRCValidation)
	require.Equal(t, Default().Name, o.Name) // untouched field keeps its default
}

func TestValidateRejectsBadValues(t *testing.T) {
	o := New(WithDataDir("x"))
	o.MaxFileHandleCaches = 0
	require.Error(t, o.Validate())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options.json")

	o := New(WithDataDir(dir), WithName("round-trip"), WithMaxFileSize(4096))
	require.NoError(t, o.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, o.DataDir, loaded.DataDir)
	require.Equal(t, o.Name, loaded.Name)
	require.EqualValues(t, o.MaxFileSize, loaded.MaxFileSize)
}
