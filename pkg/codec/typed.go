// Package codec provides typed helpers for encoding Go values into the byte
// slices a storage engine stores as raw values, and decoding them back. The
// engine itself is value-type agnostic (spec §3); this package is the
// out-of-scope convenience layer spec §1 sanctions sitting on top of it.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// EncodeInt64 encodes v as 8 big-endian bytes.
func EncodeInt64(v int64) []byte {
	return EncodeUint64(uint64(v))
}

// DecodeInt64 decodes a value previously produced by EncodeInt64.
func DecodeInt64(b []byte) (int64, error) {
	u, err := DecodeUint64(b)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// EncodeUint64 encodes v as 8 big-endian bytes.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 decodes a value previously produced by EncodeUint64.
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("codec: expected 8 bytes for uint64, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// EncodeFloat64 encodes v as 8 big-endian bytes via its IEEE-754 bit pattern.
func EncodeFloat64(v float64) []byte {
	return EncodeUint64(math.Float64bits(v))
}

// DecodeFloat64 decodes a value previously produced by EncodeFloat64.
func DecodeFloat64(b []byte) (float64, error) {
	u, err := DecodeUint64(b)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

// EncodeBool encodes v as a single byte: 0x01 for true, 0x00 for false.
//
// A false value encodes to the same single 0x00 byte the engine treats as
// its tombstone sentinel (spec §3). Bitcask.Put rejects that byte string
// outright rather than silently deleting the key, so callers storing bools
// must be prepared for Put("key", EncodeBool(false)) to return an error;
// wrap bools in a multi-byte encoding (e.g. prefix with a type tag) if that
// matters for your use case.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeBool decodes a value previously produced by EncodeBool.
func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("codec: expected 1 byte for bool, got %d", len(b))
	}
	switch b[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, fmt.Errorf("codec: invalid bool byte %#x", b[0])
	}
}

// EncodeString encodes v as its raw UTF-8 bytes.
func EncodeString(v string) []byte {
	return []byte(v)
}

// DecodeString validates b as UTF-8 and returns it as a string.
func DecodeString(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("codec: invalid UTF-8")
	}
	return string(b), nil
}

// EncodeBytes returns a defensive copy of v, for callers who want the same
// "always copy" contract the typed helpers give them.
func EncodeBytes(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// DecodeBytes returns a defensive copy of b.
func DecodeBytes(b []byte) []byte {
	return EncodeBytes(b)
}
