package dispatch

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/binding"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/envelope"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/session"
)

// Payload bodies are deterministic CBOR with integer keys; the struct
// field numbers are wire constants.

// PairRequestBody carries an invite proof and the requester's identity.
type PairRequestBody struct {
	InviteID   []byte `cbor:"1,keyasint"`
	Secret     []byte `cbor:"2,keyasint"`
	SigningPub []byte `cbor:"3,keyasint"`
	KexPub     []byte `cbor:"4,keyasint"`
	Requested  uint32 `cbor:"5,keyasint"`
	Proof      []byte `cbor:"6,keyasint"`
}

// PairReceiptBody is the sealed reply to a pair request.
type PairReceiptBody struct {
	Permissions uint32 `cbor:"1,keyasint"`
	IssuedAt    int64  `cbor:"2,keyasint"`
	Signature   []byte `cbor:"3,keyasint"`
	ReceiptJWS  string `cbor:"4,keyasint"`
}

// BindingProofBody carries a transport certificate binding proof.
type BindingProofBody struct {
	Fingerprint []byte `cbor:"1,keyasint"`
	Signature   []byte `cbor:"2,keyasint"`
}

// PairingHandler routes pair requests into the pairing manager. The
// reply is the signed receipt, including its JWS export for display.
func PairingHandler(m *pairing.Manager, keys *identity.Keys) Handler {
	return func(ctx context.Context, sender identity.Identity, payload []byte) ([]byte, error) {
		var body PairRequestBody
		if err := envelope.UnmarshalBody(payload, &body); err != nil {
			return nil, err
		}
		inviteID, err := identity.IDFromBytes(body.InviteID)
		if err != nil {
			return nil, fmt.Errorf("pair request invite id: %w", err)
		}

		// The requester identity inside the body must be the envelope
		// sender; the envelope signature already authenticated it.
		operator := identity.Identity{
			ID:         sender.ID,
			SigningPub: ed25519.PublicKey(body.SigningPub),
			KexPub:     body.KexPub,
		}
		if !operator.Equal(sender) {
			return nil, fmt.Errorf("pair request identity does not match envelope sender")
		}

		_, receipt, err := m.HandleRequest(ctx, &pairing.Request{
			InviteID:  inviteID,
			Secret:    body.Secret,
			Operator:  operator,
			Requested: policy.Permissions(body.Requested),
			Proof:     body.Proof,
		})
		if err != nil {
			return nil, err
		}

		jws, err := pairing.ExportJWS(keys, receipt)
		if err != nil {
			return nil, err
		}
		return envelope.MarshalBody(PairReceiptBody{
			Permissions: uint32(receipt.Permissions),
			IssuedAt:    receipt.IssuedAt.Unix(),
			Signature:   receipt.Signature,
			ReceiptJWS:  jws,
		})
	}
}

// SessionHandler routes session init requests into the authorizer. The
// reply is the encoded ticket.
func SessionHandler(a *session.Authorizer) Handler {
	return func(ctx context.Context, sender identity.Identity, _ []byte) ([]byte, error) {
		ticket, err := a.Authorize(ctx, sender.ID)
		if err != nil {
			return nil, err
		}
		return ticket.Encode()
	}
}

// BindingHandler routes binding proofs into the verifier. A verified
// proof is answered with this side's own proof over its local transport
// fingerprint, so both directions end up bound.
func BindingHandler(v *binding.Verifier, keys *identity.Keys, localFP [binding.FingerprintSize]byte) Handler {
	return func(ctx context.Context, sender identity.Identity, payload []byte) ([]byte, error) {
		var body BindingProofBody
		if err := envelope.UnmarshalBody(payload, &body); err != nil {
			return nil, err
		}
		if len(body.Fingerprint) != binding.FingerprintSize {
			return nil, fmt.Errorf("binding fingerprint must be %d bytes, got %d", binding.FingerprintSize, len(body.Fingerprint))
		}
		var fp [binding.FingerprintSize]byte
		copy(fp[:], body.Fingerprint)

		proof := &binding.Proof{
			PeerID:      sender.ID,
			Fingerprint: fp,
			Signature:   body.Signature,
		}
		if err := v.Verify(ctx, sender, proof); err != nil {
			return nil, err
		}

		own := binding.Sign(keys, localFP)
		return envelope.MarshalBody(BindingProofBody{
			Fingerprint: own.Fingerprint[:],
			Signature:   own.Signature,
		})
	}
}
