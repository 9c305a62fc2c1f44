// Package pairing implements the device side of the pairing flow: invite
// issuance, proof verification, approval, and the durable pairing record
// that later session authorization builds on.
//
// The flow is Invited -> ProofVerified -> Paired, with Revoked as the
// explicit terminal state. An invite is consumed exactly once, at the
// moment its proof verifies; a denied approval still burns the invite.
package pairing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/audit"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

// Store errors returned by InviteStore and PairingStore implementations.
var (
	ErrInviteNotFound = errors.New("invite not found")
	// ErrInviteNotConsumable means the atomic consume found the invite
	// no longer pending or past its expiry.
	ErrInviteNotConsumable = errors.New("invite not consumable")
	ErrRecordNotFound      = errors.New("pairing record not found")
)

// InviteStore persists invites. Implementations must make ConsumeInvite
// atomic: exactly one caller may transition a pending, unexpired invite
// to consumed.
type InviteStore interface {
	PutInvite(ctx context.Context, inv *Invite) error
	GetInvite(ctx context.Context, id identity.ID) (*Invite, error)
	ListInvites(ctx context.Context) ([]*Invite, error)
	// ConsumeInvite marks a pending, unexpired invite consumed.
	// Returns ErrInviteNotConsumable if it is not in that state.
	ConsumeInvite(ctx context.Context, id identity.ID, now time.Time) error
	RevokeInvite(ctx context.Context, id identity.ID) error
}

// RecordStatus is the pairing record lifecycle state.
type RecordStatus string

const (
	RecordPaired  RecordStatus = "paired"
	RecordRevoked RecordStatus = "revoked"
)

// Record is a durable pairing between this device and one operator. It
// pins both identities; any key change requires a fresh pairing.
type Record struct {
	DeviceID   identity.ID
	OperatorID identity.ID
	Device     identity.Identity
	Operator   identity.Identity
	// Permissions is the granted capability mask, snapshotted into
	// every session ticket minted against this record.
	Permissions            policy.Permissions
	UnattendedEnabled      bool
	RequireConsentEachTime bool
	CreatedAt              time.Time
	Status                 RecordStatus
	RevokedAt              time.Time
}

// Active reports whether the record authorizes sessions.
func (r *Record) Active() bool {
	return r.Status == RecordPaired
}

// PairingStore persists pairing records keyed by (device, operator).
type PairingStore interface {
	PutRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, deviceID, operatorID identity.ID) (*Record, error)
	ListRecords(ctx context.Context) ([]*Record, error)
	// RevokeRecord transitions a record to revoked. Returns
	// ErrRecordNotFound if no record exists for the pair.
	RevokeRecord(ctx context.Context, deviceID, operatorID identity.ID, now time.Time) error
}

// Request is a decrypted pair-request payload awaiting verification. The
// secret travels only inside a sealed envelope.
type Request struct {
	InviteID  identity.ID
	Secret    []byte
	Operator  identity.Identity
	Requested policy.Permissions
	Proof     []byte
}

// Manager drives the pairing flow for one device identity.
type Manager struct {
	keys     *identity.Keys
	invites  InviteStore
	records  PairingStore
	approver policy.PairingApprover

	logger         *slog.Logger
	emitter        audit.EventEmitter
	now            func() time.Time
	inviteTTL      time.Duration
	requireConsent bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEmitter sets the audit event emitter.
func WithEmitter(e audit.EventEmitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithInviteTTL sets the validity window for new invites.
func WithInviteTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.inviteTTL = ttl }
}

// WithRequireConsent makes every record demand a consent prompt per
// session, even when unattended access is granted.
func WithRequireConsent(require bool) Option {
	return func(m *Manager) { m.requireConsent = require }
}

// NewManager creates a pairing manager for the device owning keys.
func NewManager(keys *identity.Keys, invites InviteStore, records PairingStore, approver policy.PairingApprover, opts ...Option) *Manager {
	m := &Manager{
		keys:      keys,
		invites:   invites,
		records:   records,
		approver:  approver,
		logger:    slog.Default(),
		emitter:   audit.NopEmitter{},
		now:       time.Now,
		inviteTTL: DefaultInviteTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInvite issues a new single-use invite and returns it with the
// plaintext secret for out-of-band delivery. The secret is not retained.
func (m *Manager) CreateInvite(ctx context.Context) (*Invite, []byte, error) {
	inv, secret, err := NewInvite(m.keys.ID(), m.inviteTTL, m.now())
	if err != nil {
		return nil, nil, err
	}
	if err := m.invites.PutInvite(ctx, inv); err != nil {
		return nil, nil, err
	}
	m.logger.Info("invite created",
		"invite_id", inv.ID.String(),
		"expires_at", inv.ExpiresAt,
	)
	return inv, secret, nil
}

// RevokeInvite withdraws a pending invite.
func (m *Manager) RevokeInvite(ctx context.Context, id identity.ID) error {
	return m.invites.RevokeInvite(ctx, id)
}

// Invites lists all invites regardless of state.
func (m *Manager) Invites(ctx context.Context) ([]*Invite, error) {
	return m.invites.ListInvites(ctx)
}

// HandleRequest verifies a pair request against its invite, consumes the
// invite, asks the approver, and on approval persists the pinned record
// and returns it with a signed receipt.
//
// Expiry and status are checked before the proof so an expired invite
// reports pair.invite_expired even when the proof is valid. The invite
// is consumed atomically after proof verification; losing that race
// reports pair.invite_already_used.
func (m *Manager) HandleRequest(ctx context.Context, req *Request) (*Record, *Receipt, error) {
	now := m.now()
	m.emit(audit.EventPairRequestReceived, req.Operator.ID, map[string]string{
		"invite_id": req.InviteID.String(),
		"requested": req.Requested.String(),
	})

	if err := req.Operator.Validate(); err != nil {
		return nil, nil, protoerr.New(protoerr.CodeInviteInvalidProof, "malformed requester identity").
			With("invite_id", req.InviteID.String())
	}

	inv, err := m.invites.GetInvite(ctx, req.InviteID)
	if errors.Is(err, ErrInviteNotFound) {
		return nil, nil, protoerr.New(protoerr.CodeInviteInvalidProof, "unknown invite").
			With("invite_id", req.InviteID.String())
	}
	if err != nil {
		return nil, nil, err
	}

	switch inv.Status {
	case InviteConsumed, InviteRevoked:
		return nil, nil, protoerr.New(protoerr.CodeInviteAlreadyUsed, "invite is no longer pending").
			With("invite_id", inv.ID.String()).
			With("status", string(inv.Status))
	}
	if inv.Expired(now) {
		return nil, nil, protoerr.New(protoerr.CodeInviteExpired, "invite expired").
			With("invite_id", inv.ID.String()).
			With("expired_at", inv.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if !inv.MatchesSecret(req.Secret) ||
		!verifyProof(req.Secret, req.Proof, inv.ID, m.keys.ID(), req.Operator, req.Requested) {
		return nil, nil, protoerr.New(protoerr.CodeInviteInvalidProof, "pairing proof verification failed").
			With("invite_id", inv.ID.String()).
			With("operator_id", req.Operator.ID.String())
	}

	// Proof verified: burn the invite before asking for approval so a
	// denied request cannot be retried on the same invite.
	if err := m.invites.ConsumeInvite(ctx, inv.ID, now); err != nil {
		if errors.Is(err, ErrInviteNotConsumable) {
			return nil, nil, protoerr.New(protoerr.CodeInviteAlreadyUsed, "invite consumed concurrently").
				With("invite_id", inv.ID.String())
		}
		return nil, nil, err
	}

	decision, err := m.approver.ApprovePairing(ctx, policy.PairingRequest{
		DeviceID:   m.keys.ID(),
		OperatorID: req.Operator.ID,
		Requested:  req.Requested,
	})
	if err != nil {
		return nil, nil, err
	}
	if !decision.Approved {
		m.emit(audit.EventPairDenied, req.Operator.ID, map[string]string{
			"invite_id": inv.ID.String(),
			"reason":    decision.Reason,
		})
		return nil, nil, protoerr.New(protoerr.CodePairingDenied, "pairing denied").
			With("operator_id", req.Operator.ID.String()).
			With("reason", decision.Reason)
	}

	device, err := m.keys.Public()
	if err != nil {
		return nil, nil, err
	}
	rec := &Record{
		DeviceID:               m.keys.ID(),
		OperatorID:             req.Operator.ID,
		Device:                 device,
		Operator:               req.Operator,
		Permissions:            decision.Granted,
		UnattendedEnabled:      decision.Granted.Has(policy.PermUnattended),
		RequireConsentEachTime: m.requireConsent,
		CreatedAt:              now,
		Status:                 RecordPaired,
	}
	if err := m.records.PutRecord(ctx, rec); err != nil {
		return nil, nil, err
	}

	receipt, err := m.signReceipt(rec)
	if err != nil {
		return nil, nil, err
	}

	m.emit(audit.EventPairApproved, req.Operator.ID, map[string]string{
		"invite_id":   inv.ID.String(),
		"permissions": decision.Granted.String(),
	})
	m.logger.Info("pairing established",
		"operator_id", req.Operator.ID.String(),
		"permissions", decision.Granted.String(),
		"unattended", rec.UnattendedEnabled,
	)
	return rec, receipt, nil
}

// Revoke terminates the pairing with an operator. Revocation is
// explicit and terminal; a revoked pair must re-pair from a new invite.
func (m *Manager) Revoke(ctx context.Context, operatorID identity.ID) error {
	err := m.records.RevokeRecord(ctx, m.keys.ID(), operatorID, m.now())
	if errors.Is(err, ErrRecordNotFound) {
		return protoerr.New(protoerr.CodeNotPaired, "no pairing record to revoke").
			With("operator_id", operatorID.String())
	}
	if err != nil {
		return err
	}
	m.emit(audit.EventPairRevoked, operatorID, nil)
	return nil
}

// Record returns the pairing record for an operator, if any.
func (m *Manager) Record(ctx context.Context, operatorID identity.ID) (*Record, error) {
	rec, err := m.records.GetRecord(ctx, m.keys.ID(), operatorID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, protoerr.New(protoerr.CodeNotPaired, "not paired").
			With("operator_id", operatorID.String())
	}
	return rec, err
}

func (m *Manager) emit(et audit.EventType, actorID identity.ID, details map[string]string) {
	ev := audit.New(et, m.keys.ID().String(), actorID.String(), details)
	if err := m.emitter.Emit(ev); err != nil {
		m.logger.Warn("audit emit failed", "event", string(et), "error", err)
	}
}
