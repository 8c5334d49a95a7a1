// Package bitcaskopt builds and persists the configuration a storage engine
// instance is opened with.
package bitcaskopt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	natomic "github.com/natefinch/atomic"
)

// StoreModel selects the on-disk record layout. Bitcask is the only model
// this engine implements; the field exists so a future log schema can be
// selected without changing the Options shape (spec §6 names this field
// explicitly even though schema evolution itself is a Non-goal).
type StoreModel string

const (
	StoreModelBitcask StoreModel = "bitcask"
)

// Options is the full set of tunables a caller can set before opening an
// engine instance (spec §6).
type Options struct {
	DataDir             string     `json:"data_dir"`
	Name                string     `json:"name"`
	MaxFileSize         int64      `json:"max_file_size"`
	MaxFileHandleCaches int        `json:"max_file_handle_caches"`
	MaxHistoricalFiles  int        `json:"max_historical_files"`
	StrictCRCValidation bool       `json:"strict_crc_validation"`
	StoreModel          StoreModel `json:"store_model"`
}

// Default returns the engine's out-of-the-box configuration.
func Default() *Options {
	return &Options{
		DataDir:             "./data",
		Name:                "default",
		MaxFileSize:         64 * 1024 * 1024,
		MaxFileHandleCaches: 32,
		MaxHistoricalFiles:  10,
		StrictCRCValidation: false,
		StoreModel:          StoreModelBitcask,
	}
}

// Option mutates an in-progress Options during New.
type Option func(*Options)

// New builds Options starting from Default and applying opts in order.
func New(opts ...Option) *Options {
	o := Default()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithDataDir sets the parent directory; the engine stores its data files
// in the <DataDir>/<Name>/ subdirectory.
func WithDataDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.DataDir = dir
		}
	}
}

// WithName sets the instance name, which is also the name of the
// subdirectory of DataDir that holds this instance's data files.
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithMaxFileSize sets the rotation threshold in bytes.
func WithMaxFileSize(size int64) Option {
	return func(o *Options) {
		if size > 0 {
			o.MaxFileSize = size
		}
	}
}

// WithMaxFileHandleCaches sets the bounded read-handle cache's capacity.
func WithMaxFileHandleCaches(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxFileHandleCaches = n
		}
	}
}

// WithMaxHistoricalFiles sets the sealed-file count at or above which
// can_merge reports true and a put auto-triggers a background merge.
func WithMaxHistoricalFiles(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxHistoricalFiles = n
		}
	}
}

// WithStrictCRC toggles strict-CRC mode: a corrupt record on recovery, merge,
// or read becomes a hard error instead of a logged, skipped record.
func WithStrictCRC(strict bool) Option {
	return func(o *Options) {
		o.StrictCRCValidation = strict
	}
}

// Validate checks that Options describes an openable engine.
func (o *Options) Validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if o.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be > 0")
	}
	if o.MaxFileHandleCaches < 1 {
		return fmt.Errorf("max_file_handle_caches must be >= 1")
	}
	if o.MaxHistoricalFiles < 0 {
		return fmt.Errorf("max_historical_files must be >= 0")
	}
	if o.StoreModel != StoreModelBitcask {
		return fmt.Errorf("unsupported store_model: %s", o.StoreModel)
	}
	return nil
}

// LoadFromFile reads Options from a JSON file, layered on top of Default so
// a partial file only overrides the fields it sets.
func LoadFromFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}

	o := Default()
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return o, nil
}

// SaveToFile persists Options as JSON, writing via a temp file + rename so a
// crash mid-write never leaves a partially-written config behind.
func (o *Options) SaveToFile(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err := natomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write options file: %w", err)
	}
	return nil
}
