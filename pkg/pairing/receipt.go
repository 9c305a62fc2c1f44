package pairing

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

// Transcript tags for the pairing receipt. Stable wire constants.
const (
	tagReceiptDevice   uint32 = 0x5101
	tagReceiptOperator uint32 = 0x5102
	tagReceiptOpSign   uint32 = 0x5103
	tagReceiptOpKex    uint32 = 0x5104
	tagReceiptPerms    uint32 = 0x5105
	tagReceiptIssuedAt uint32 = 0x5106
)

// Receipt is the device's signed acknowledgement of a pairing: proof to
// the operator that this device, under this identity, granted these
// permissions at this time.
type Receipt struct {
	DeviceID    identity.ID
	Operator    identity.Identity
	Permissions policy.Permissions
	IssuedAt    time.Time
	Signature   []byte // device Ed25519 over the receipt transcript
}

func receiptTranscript(r *Receipt) [transcript.HashSize]byte {
	b := transcript.New()
	b.Append(tagReceiptDevice, r.DeviceID[:])
	b.Append(tagReceiptOperator, r.Operator.ID[:])
	b.Append(tagReceiptOpSign, r.Operator.SigningPub)
	b.Append(tagReceiptOpKex, r.Operator.KexPub)
	b.AppendUint32(tagReceiptPerms, uint32(r.Permissions))
	b.AppendUint64(tagReceiptIssuedAt, uint64(r.IssuedAt.Unix()))
	return b.Finish()
}

// signReceipt issues the receipt for a freshly persisted record.
func (m *Manager) signReceipt(rec *Record) (*Receipt, error) {
	r := &Receipt{
		DeviceID:    rec.DeviceID,
		Operator:    rec.Operator,
		Permissions: rec.Permissions,
		IssuedAt:    rec.CreatedAt,
	}
	hash := receiptTranscript(r)
	r.Signature = m.keys.Sign(hash[:])
	return r, nil
}

// Verify checks the receipt signature against the device's pinned
// signing key.
func (r *Receipt) Verify(device identity.Identity) error {
	if r.DeviceID != device.ID {
		return fmt.Errorf("receipt device %s does not match identity %s", r.DeviceID, device.ID)
	}
	hash := receiptTranscript(r)
	if !cryptoutil.Verify(device.SigningPub, hash[:], r.Signature) {
		return fmt.Errorf("receipt signature verification failed")
	}
	return nil
}

// jwsReceipt is the JSON payload of the exported receipt.
type jwsReceipt struct {
	DeviceID     string `json:"device_id"`
	OperatorID   string `json:"operator_id"`
	OpSigningPub []byte `json:"operator_signing_pub"`
	OpKexPub     []byte `json:"operator_kex_pub"`
	Permissions  uint32 `json:"permissions"`
	IssuedAt     int64  `json:"issued_at"`
	Signature    []byte `json:"signature"`
}

// ExportJWS renders the receipt as a compact EdDSA JWS signed by the
// device key, for out-of-band display and archival on the operator side.
func ExportJWS(keys *identity.Keys, r *Receipt) (string, error) {
	payload, err := json.Marshal(jwsReceipt{
		DeviceID:     r.DeviceID.String(),
		OperatorID:   r.Operator.ID.String(),
		OpSigningPub: r.Operator.SigningPub,
		OpKexPub:     r.Operator.KexPub,
		Permissions:  uint32(r.Permissions),
		IssuedAt:     r.IssuedAt.Unix(),
		Signature:    r.Signature,
	})
	if err != nil {
		return "", fmt.Errorf("encode receipt payload: %w", err)
	}

	seed := keys.SigningSeed()
	defer cryptoutil.Zero(seed)
	priv := ed25519.NewKeyFromSeed(seed)

	signerOpts := (&jose.SignerOptions{}).WithType("pair-receipt+jws")
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, signerOpts)
	if err != nil {
		return "", fmt.Errorf("create receipt signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return obj.CompactSerialize()
}

// VerifyJWS parses and verifies an exported receipt against the pinned
// device identity, checking both the JWS signature and the inner
// protocol receipt signature.
func VerifyJWS(raw string, device identity.Identity) (*Receipt, error) {
	obj, err := jose.ParseSigned(raw, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	payload, err := obj.Verify(ed25519.PublicKey(device.SigningPub))
	if err != nil {
		return nil, fmt.Errorf("receipt envelope signature: %w", err)
	}

	var body jwsReceipt
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	deviceID, err := identity.ParseID(body.DeviceID)
	if err != nil {
		return nil, err
	}
	operatorID, err := identity.ParseID(body.OperatorID)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		DeviceID: deviceID,
		Operator: identity.Identity{
			ID:         operatorID,
			SigningPub: body.OpSigningPub,
			KexPub:     body.OpKexPub,
		},
		Permissions: policy.Permissions(body.Permissions),
		IssuedAt:    time.Unix(body.IssuedAt, 0).UTC(),
		Signature:   body.Signature,
	}
	if err := r.Verify(device); err != nil {
		return nil, err
	}
	return r, nil
}
