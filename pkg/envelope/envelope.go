// Package envelope implements the signed, sealed message unit exchanged
// between paired parties. An envelope is encrypted to the recipient's
// pinned key-agreement key via an ephemeral X25519 exchange and signed by
// the sender's long-term Ed25519 identity key over the canonical
// transcript of its contents.
//
// The hard ordering invariant: Open verifies the signature before any
// decryption is attempted. Forged messages are rejected without doing
// AEAD work and without acting as a decryption oracle.
package envelope

import (
	"fmt"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

// Version is the protocol version carried in every envelope.
const Version = 1

// MsgType identifies the payload kind inside an envelope. The set is
// closed and versioned; unknown values are a recoverable dispatch error,
// never a crash.
type MsgType uint16

const (
	MsgPairRequest  MsgType = 1 // operator -> device: invite proof + requester identity
	MsgPairReceipt  MsgType = 2 // device -> operator: signed pairing receipt
	MsgSessionInit  MsgType = 3 // operator -> device: session authorization request
	MsgSessionTicket MsgType = 4 // device -> operator: signed session ticket
	MsgBindingProof MsgType = 5 // either direction: transport certificate binding
	MsgData         MsgType = 6 // data plane: control/media metadata
)

// String returns the message type name for logs.
func (t MsgType) String() string {
	switch t {
	case MsgPairRequest:
		return "pair_request"
	case MsgPairReceipt:
		return "pair_receipt"
	case MsgSessionInit:
		return "session_init"
	case MsgSessionTicket:
		return "session_ticket"
	case MsgBindingProof:
		return "binding_proof"
	case MsgData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// Known reports whether the message type belongs to the closed set.
func (t MsgType) Known() bool {
	return t >= MsgPairRequest && t <= MsgData
}

// Envelope is a sealed protocol message. It is constructed per outbound
// message and discarded after inbound processing; envelopes are never
// persisted.
type Envelope struct {
	Version      uint8
	Type         MsgType
	SenderID     identity.ID
	EphemeralPub []byte // 32 bytes, X25519
	AAD          []byte // additional authenticated data, in the clear
	Nonce        []byte // 12 bytes
	Ciphertext   []byte
	Signature    []byte // 64 bytes, Ed25519 over the canonical transcript
}

// Transcript tags for envelope hashing. Stable wire constants.
const (
	tagVersion     uint32 = 0x4501
	tagMsgType     uint32 = 0x4502
	tagSenderID    uint32 = 0x4503
	tagRecipientID uint32 = 0x4504
	tagEphemeral   uint32 = 0x4505
	tagAAD         uint32 = 0x4506
	tagNonce       uint32 = 0x4507
	tagCiphertext  uint32 = 0x4508
)

// HKDF info string for the per-envelope AEAD key.
const kdfInfo = "zippyviewer/envelope/key/v1"

// Seal encrypts payload to the recipient and signs the result with the
// sender's identity key. A fresh ephemeral X25519 key pair is generated
// per message; the AEAD key is derived from the DH shared secret salted
// by the canonical transcript of (sender, recipient, ephemeral, aad).
func Seal(sender *identity.Keys, recipient identity.Identity, msgType MsgType, payload, aad []byte) (*Envelope, error) {
	if err := recipient.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipient identity: %w", err)
	}
	if !msgType.Known() {
		return nil, fmt.Errorf("cannot seal unknown message type %d", uint16(msgType))
	}

	ephPub, ephPriv, err := cryptoutil.GenerateKexKey()
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zero(ephPriv)

	shared, err := cryptoutil.DH(ephPriv, recipient.KexPub)
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zero(shared)

	senderID := sender.ID()
	key, err := deriveKey(shared, senderID, recipient.ID, ephPub, aad)
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zero(key)

	nonce, err := cryptoutil.RandomNonce()
	if err != nil {
		return nil, err
	}

	ciphertext, err := cryptoutil.AEADSeal(key, nonce, aad, payload)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Version:      Version,
		Type:         msgType,
		SenderID:     senderID,
		EphemeralPub: ephPub,
		AAD:          aad,
		Nonce:        nonce,
		Ciphertext:   ciphertext,
	}
	hash := env.signingTranscript()
	env.Signature = sender.Sign(hash[:])
	return env, nil
}

// Open verifies and decrypts an inbound envelope.
//
// Verification order is a hard invariant:
//  1. header sender_id must match the pinned sender identity
//     (envelope.identity_mismatch),
//  2. the signature must verify against the pinned signing key
//     (envelope.signature_invalid) — before any decryption,
//  3. only then is the AEAD opened (envelope.decryption_failed).
func Open(recipient *identity.Keys, pinnedSender identity.Identity, env *Envelope) ([]byte, error) {
	if err := pinnedSender.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pinned sender identity: %w", err)
	}
	if env.Version != Version {
		return nil, protoerr.Newf(protoerr.CodeUnknownMessageType, "unsupported envelope version %d", env.Version)
	}

	if env.SenderID != pinnedSender.ID {
		return nil, protoerr.New(protoerr.CodeIdentityMismatch, "envelope sender does not match pinned identity").
			With("sender_id", env.SenderID.String()).
			With("pinned_id", pinnedSender.ID.String())
	}

	hash := env.signingTranscript()
	if !cryptoutil.Verify(pinnedSender.SigningPub, hash[:], env.Signature) {
		return nil, protoerr.New(protoerr.CodeSignatureInvalid, "envelope signature verification failed").
			With("sender_id", env.SenderID.String())
	}

	shared, err := recipient.DH(env.EphemeralPub)
	if err != nil {
		return nil, protoerr.New(protoerr.CodeDecryptionFailed, "ephemeral key agreement failed").
			With("sender_id", env.SenderID.String())
	}
	defer cryptoutil.Zero(shared)

	key, err := deriveKey(shared, env.SenderID, recipient.ID(), env.EphemeralPub, env.AAD)
	if err != nil {
		return nil, err
	}
	defer cryptoutil.Zero(key)

	payload, err := cryptoutil.AEADOpen(key, env.Nonce, env.AAD, env.Ciphertext)
	if err != nil {
		return nil, protoerr.New(protoerr.CodeDecryptionFailed, "envelope decryption failed").
			With("sender_id", env.SenderID.String())
	}
	return payload, nil
}

// signingTranscript hashes every envelope field the signature covers:
// header, ephemeral key, aad, nonce, and ciphertext.
func (e *Envelope) signingTranscript() [transcript.HashSize]byte {
	b := transcript.New()
	b.AppendUint32(tagVersion, uint32(e.Version))
	b.AppendUint32(tagMsgType, uint32(e.Type))
	b.Append(tagSenderID, e.SenderID[:])
	b.Append(tagEphemeral, e.EphemeralPub)
	b.Append(tagAAD, e.AAD)
	b.Append(tagNonce, e.Nonce)
	b.Append(tagCiphertext, e.Ciphertext)
	return b.Finish()
}

// deriveKey computes the per-envelope AEAD key: HKDF over the DH shared
// secret, salted by the transcript of the public exchange context so the
// key binds sender, recipient, ephemeral key, and aad.
func deriveKey(shared []byte, senderID, recipientID identity.ID, ephPub, aad []byte) ([]byte, error) {
	salt := transcript.Sum(
		transcript.Field{Tag: tagSenderID, Data: senderID[:]},
		transcript.Field{Tag: tagRecipientID, Data: recipientID[:]},
		transcript.Field{Tag: tagEphemeral, Data: ephPub},
		transcript.Field{Tag: tagAAD, Data: aad},
	)
	return cryptoutil.HKDF(shared, salt[:], []byte(kdfInfo), cryptoutil.KeySize)
}
