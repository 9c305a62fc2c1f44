package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

// Wire layout, all integers big-endian:
//
//	version     uint8
//	msg_type    uint16
//	sender_id   16 bytes
//	ephemeral   32 bytes (X25519 public key)
//	aad_len     uint16, aad bytes
//	nonce       12 bytes
//	ct_len      uint32, ciphertext bytes
//	signature   64 bytes (Ed25519)
const (
	headerSize = 1 + 2 + identity.IDSize + cryptoutil.X25519Size

	// MaxAADSize bounds the clear authenticated data.
	MaxAADSize = 1<<16 - 1

	// MaxCiphertextSize bounds inbound allocations. Control and media
	// metadata messages are small; anything larger is malformed.
	MaxCiphertextSize = 1 << 24
)

// Encode serializes the envelope to wire bytes.
func (e *Envelope) Encode() ([]byte, error) {
	if len(e.EphemeralPub) != cryptoutil.X25519Size {
		return nil, fmt.Errorf("ephemeral key must be %d bytes, got %d", cryptoutil.X25519Size, len(e.EphemeralPub))
	}
	if len(e.Nonce) != cryptoutil.NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", cryptoutil.NonceSize, len(e.Nonce))
	}
	if len(e.Signature) != cryptoutil.SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", cryptoutil.SignatureSize, len(e.Signature))
	}
	if len(e.AAD) > MaxAADSize {
		return nil, fmt.Errorf("aad too large: %d bytes", len(e.AAD))
	}
	if len(e.Ciphertext) > MaxCiphertextSize {
		return nil, fmt.Errorf("ciphertext too large: %d bytes", len(e.Ciphertext))
	}

	size := headerSize + 2 + len(e.AAD) + cryptoutil.NonceSize + 4 + len(e.Ciphertext) + cryptoutil.SignatureSize
	buf := make([]byte, 0, size)

	buf = append(buf, e.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(e.Type))
	buf = append(buf, e.SenderID[:]...)
	buf = append(buf, e.EphemeralPub...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.AAD)))
	buf = append(buf, e.AAD...)
	buf = append(buf, e.Nonce...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(e.Ciphertext)))
	buf = append(buf, e.Ciphertext...)
	buf = append(buf, e.Signature...)
	return buf, nil
}

// Decode parses an envelope from wire bytes. Trailing bytes are rejected;
// the frame must be exactly one envelope.
func Decode(data []byte) (*Envelope, error) {
	if len(data) < headerSize+2 {
		return nil, fmt.Errorf("envelope truncated: %d bytes", len(data))
	}

	var e Envelope
	off := 0
	e.Version = data[off]
	off++
	e.Type = MsgType(binary.BigEndian.Uint16(data[off:]))
	off += 2
	copy(e.SenderID[:], data[off:off+identity.IDSize])
	off += identity.IDSize
	e.EphemeralPub = append([]byte(nil), data[off:off+cryptoutil.X25519Size]...)
	off += cryptoutil.X25519Size

	aadLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if len(data) < off+aadLen+cryptoutil.NonceSize+4 {
		return nil, fmt.Errorf("envelope truncated in aad")
	}
	e.AAD = append([]byte(nil), data[off:off+aadLen]...)
	off += aadLen

	e.Nonce = append([]byte(nil), data[off:off+cryptoutil.NonceSize]...)
	off += cryptoutil.NonceSize

	ctLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4
	if ctLen > MaxCiphertextSize {
		return nil, fmt.Errorf("ciphertext length %d exceeds limit", ctLen)
	}
	if len(data) < off+ctLen+cryptoutil.SignatureSize {
		return nil, fmt.Errorf("envelope truncated in ciphertext")
	}
	e.Ciphertext = append([]byte(nil), data[off:off+ctLen]...)
	off += ctLen

	e.Signature = append([]byte(nil), data[off:off+cryptoutil.SignatureSize]...)
	off += cryptoutil.SignatureSize

	if off != len(data) {
		return nil, fmt.Errorf("envelope has %d trailing bytes", len(data)-off)
	}
	return &e, nil
}

// bodyEncMode is the deterministic CBOR encoder for payload bodies:
// core deterministic encoding so both sides produce identical bytes for
// identical structures.
var bodyEncMode, _ = cbor.CoreDetEncOptions().EncMode()

// bodyDecMode rejects unknown fields sloppiness by disallowing duplicate
// map keys and limiting nesting.
var bodyDecMode, _ = cbor.DecOptions{
	DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	MaxNestedLevels: 16,
}.DecMode()

// MarshalBody encodes a typed payload body to deterministic CBOR.
func MarshalBody(v any) ([]byte, error) {
	data, err := bodyEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload body: %w", err)
	}
	return data, nil
}

// UnmarshalBody decodes a typed payload body from CBOR.
func UnmarshalBody(data []byte, v any) error {
	if err := bodyDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload body: %w", err)
	}
	return nil
}
