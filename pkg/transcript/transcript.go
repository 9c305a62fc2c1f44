// Package transcript implements deterministic tag-length-value hashing.
// Every higher protocol layer (envelope sealing, pairing proofs, ticket
// signatures, transport binding) canonicalizes its fields through a
// Builder so that the same inputs yield the same hash on every platform.
package transcript

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// HashSize is the size of a finished transcript hash in bytes.
const HashSize = sha256.Size

// Builder accumulates tagged fields into an ordered byte buffer.
// Each Append contributes tag(4B big-endian) || len(4B big-endian) || data,
// so two transcripts differ if any tag, length, byte, or append order
// differs. The zero value is ready to use; an empty transcript is valid.
//
// Builder is not safe for concurrent use.
type Builder struct {
	buf []byte
}

// New returns an empty transcript builder.
func New() *Builder {
	return &Builder{}
}

// Append adds a tagged field to the transcript.
func (b *Builder) Append(tag uint32, data []byte) *Builder {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], tag)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(data)))
	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, data...)
	return b
}

// AppendUint64 adds a tagged 8-byte big-endian integer field.
func (b *Builder) AppendUint64(tag uint32, v uint64) *Builder {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], v)
	return b.Append(tag, be[:])
}

// AppendUint32 adds a tagged 4-byte big-endian integer field.
func (b *Builder) AppendUint32(tag uint32, v uint32) *Builder {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], v)
	return b.Append(tag, be[:])
}

// Finish returns the SHA-256 hash of the accumulated buffer.
// The builder remains usable; further appends extend the same transcript.
func (b *Builder) Finish() [HashSize]byte {
	return sha256.Sum256(b.buf)
}

// Len returns the current accumulated buffer length in bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Field is a tag/data pair for Sum.
type Field struct {
	Tag  uint32
	Data []byte
}

// Sum hashes a sequence of fields in order. Convenience for callers that
// have all fields up front.
func Sum(fields ...Field) [HashSize]byte {
	b := New()
	for _, f := range fields {
		b.Append(f.Tag, f.Data)
	}
	return b.Finish()
}

// ShortAuthString derives a decimal short authentication string from a
// transcript hash for out-of-band verification. digits must be between
// 4 and 9; both sides render the same digits from the same transcript.
func ShortAuthString(hash [HashSize]byte, digits int) (string, error) {
	if digits < 4 || digits > 9 {
		return "", fmt.Errorf("short auth string digits out of range: %d", digits)
	}
	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	v := binary.BigEndian.Uint64(hash[:8]) % mod
	return fmt.Sprintf("%0*d", digits, v), nil
}
