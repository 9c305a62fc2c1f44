// Package binding ties transport-layer identity to protocol identity.
// Each side signs the fingerprint of its transport certificate with its
// long-term identity key; the peer verifies the signature against the
// pinned identity and tracks the fingerprint across connections. A
// changed fingerprint is never accepted silently.
package binding

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/audit"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

// FingerprintSize is the size of a transport certificate fingerprint.
const FingerprintSize = 32

// Transcript tags for the binding proof. Stable wire constants.
const (
	tagPeerID      uint32 = 0x5301
	tagFingerprint uint32 = 0x5302
)

// Fingerprint computes the SHA-256 fingerprint of transport certificate
// bytes (DER or raw public key, whatever the transport pins).
func Fingerprint(cert []byte) [FingerprintSize]byte {
	return sha256.Sum256(cert)
}

// Proof binds a transport certificate fingerprint to a protocol
// identity: the peer's long-term signature over the fingerprint.
type Proof struct {
	PeerID      identity.ID
	Fingerprint [FingerprintSize]byte
	Signature   []byte // Ed25519 over the binding transcript
}

func proofTranscript(peerID identity.ID, fp [FingerprintSize]byte) [transcript.HashSize]byte {
	b := transcript.New()
	b.Append(tagPeerID, peerID[:])
	b.Append(tagFingerprint, fp[:])
	return b.Finish()
}

// Sign creates a binding proof for this side's transport certificate.
func Sign(keys *identity.Keys, fp [FingerprintSize]byte) *Proof {
	hash := proofTranscript(keys.ID(), fp)
	return &Proof{
		PeerID:      keys.ID(),
		Fingerprint: fp,
		Signature:   keys.Sign(hash[:]),
	}
}

// PinStore persists the last observed fingerprint per peer.
type PinStore interface {
	GetPin(ctx context.Context, peerID identity.ID) ([FingerprintSize]byte, bool, error)
	PutPin(ctx context.Context, peerID identity.ID, fp [FingerprintSize]byte) error
	DeletePin(ctx context.Context, peerID identity.ID) error
}

// Verifier checks binding proofs and enforces fingerprint continuity.
type Verifier struct {
	pins    PinStore
	logger  *slog.Logger
	emitter audit.EventEmitter
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithEmitter sets the audit event emitter.
func WithEmitter(e audit.EventEmitter) Option {
	return func(v *Verifier) { v.emitter = e }
}

// NewVerifier creates a binding verifier over a pin store.
func NewVerifier(pins PinStore, opts ...Option) *Verifier {
	v := &Verifier{
		pins:    pins,
		logger:  slog.Default(),
		emitter: audit.NopEmitter{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks a binding proof against the pinned identity and the
// last observed fingerprint.
//
// First sight pins the fingerprint. A different fingerprint on a known
// peer fails with binding.fingerprint_changed and stays rejected until
// Reapprove; connections are never silently accepted across a
// transport identity change.
func (v *Verifier) Verify(ctx context.Context, pinned identity.Identity, p *Proof) error {
	if err := pinned.Validate(); err != nil {
		return protoerr.New(protoerr.CodeBindingInvalid, "malformed pinned identity").
			With("peer_id", p.PeerID.String())
	}
	if p.PeerID != pinned.ID {
		return protoerr.New(protoerr.CodeBindingInvalid, "proof peer does not match pinned identity").
			With("peer_id", p.PeerID.String()).
			With("pinned_id", pinned.ID.String())
	}

	hash := proofTranscript(p.PeerID, p.Fingerprint)
	if !cryptoutil.Verify(pinned.SigningPub, hash[:], p.Signature) {
		return protoerr.New(protoerr.CodeBindingInvalid, "binding proof signature verification failed").
			With("peer_id", p.PeerID.String())
	}

	last, known, err := v.pins.GetPin(ctx, p.PeerID)
	if err != nil {
		return err
	}
	if !known {
		if err := v.pins.PutPin(ctx, p.PeerID, p.Fingerprint); err != nil {
			return err
		}
		v.logger.Info("transport fingerprint pinned",
			"peer_id", p.PeerID.String(),
			"fingerprint", hex.EncodeToString(p.Fingerprint[:]),
		)
		return nil
	}

	if subtle.ConstantTimeCompare(last[:], p.Fingerprint[:]) != 1 {
		ev := audit.New(audit.EventFingerprintChanged, "", p.PeerID.String(), map[string]string{
			"pinned":    hex.EncodeToString(last[:]),
			"presented": hex.EncodeToString(p.Fingerprint[:]),
		})
		if emitErr := v.emitter.Emit(ev); emitErr != nil {
			v.logger.Warn("audit emit failed", "event", string(audit.EventFingerprintChanged), "error", emitErr)
		}
		return protoerr.New(protoerr.CodeFingerprintChanged, "transport fingerprint changed").
			With("peer_id", p.PeerID.String())
	}
	return nil
}

// Reapprove replaces the pinned fingerprint after an out-of-band check.
// This is the only path that accepts a changed transport identity.
func (v *Verifier) Reapprove(ctx context.Context, peerID identity.ID, fp [FingerprintSize]byte) error {
	if err := v.pins.PutPin(ctx, peerID, fp); err != nil {
		return err
	}
	v.logger.Warn("transport fingerprint reapproved",
		"peer_id", peerID.String(),
		"fingerprint", hex.EncodeToString(fp[:]),
	)
	return nil
}

// Forget drops the pin for a peer, typically on pairing revocation.
func (v *Verifier) Forget(ctx context.Context, peerID identity.ID) error {
	return v.pins.DeletePin(ctx, peerID)
}
