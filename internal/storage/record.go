package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// HeaderSize is the fixed on-disk header: crc(4) + timestamp(8) + key_size(8) + value_size(8).
const HeaderSize = 4 + 8 + 8 + 8

// TombstoneValue is the sentinel value that marks a record as a deletion.
// A legitimate one-byte 0x00 value is indistinguishable from this and
// callers must not use it (spec §3).
var TombstoneValue = []byte{0x00}

// Record is a single decoded log entry.
type Record struct {
	Timestamp uint64
	Key       []byte
	Value     []byte
}

// IsTombstone reports whether value is the tombstone sentinel.
func IsTombstone(value []byte) bool {
	return len(value) == 1 && value[0] == 0x00
}

// Size returns the total on-disk size of the record once encoded.
func (r *Record) Size() int64 {
	return int64(HeaderSize) + int64(len(r.Key)) + int64(len(r.Value))
}

// Encode produces the exact byte layout described in spec §3: a 28-byte
// big-endian header followed by key then value, with the CRC-32 (IEEE)
// computed over everything after the CRC field itself.
func (r *Record) Encode() []byte {
	total := HeaderSize + len(r.Key) + len(r.Value)
	buf := make([]byte, total)

	binary.BigEndian.PutUint64(buf[4:12], r.Timestamp)
	binary.BigEndian.PutUint64(buf[12:20], uint64(len(r.Key)))
	binary.BigEndian.PutUint64(buf[20:28], uint64(len(r.Value)))
	copy(buf[HeaderSize:HeaderSize+len(r.Key)], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.BigEndian.PutUint32(buf[0:4], crc)

	return buf
}

// CorruptRecordError is returned by DecodeNext when the stored CRC does
// not match recomputation. Skip is the total on-disk size of the record
// (28 + key_size + value_size) that was already consumed from the reader
// while decoding it, for callers tracking a running byte offset.
type CorruptRecordError struct {
	Skip int64
}

func (e *CorruptRecordError) Error() string {
	return "bitcask: corrupt record: crc mismatch"
}

// DecodeNext reads one record from r. It returns io.EOF if the stream
// ends before a complete header, or ends exactly at a record boundary
// (also used for a partially-written trailing record at EOF — readers
// ask io.ReadFull, which turns a short final read into io.ErrUnexpectedEOF,
// normalized here to io.EOF so callers can treat both the same way).
// On a CRC mismatch it returns a *CorruptRecordError carrying the size to
// skip. The returned int is the number of bytes consumed from r.
func DecodeNext(r io.Reader) (*Record, int, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, io.EOF
	}

	timestamp := binary.BigEndian.Uint64(header[4:12])
	keySize := binary.BigEndian.Uint64(header[12:20])
	valueSize := binary.BigEndian.Uint64(header[20:28])

	body := make([]byte, keySize+valueSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, io.EOF
	}

	key := body[:keySize]
	value := body[keySize:]

	h := crc32.NewIEEE()
	h.Write(header[4:])
	h.Write(body)
	crc := h.Sum32()
	storedCRC := binary.BigEndian.Uint32(header[0:4])

	total := HeaderSize + int(keySize) + int(valueSize)
	if crc != storedCRC {
		return nil, 0, &CorruptRecordError{Skip: int64(total)}
	}

	return &Record{Timestamp: timestamp, Key: key, Value: value}, total, nil
}
