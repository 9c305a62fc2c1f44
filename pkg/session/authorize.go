// Package session implements session authorization on top of an
// established pairing: consent, short-lived signed tickets, per-session
// key derivation, and the running session with its replay filter.
//
// A session moves Requested -> ConsentPending -> Authorized -> Active
// -> Closed. Closed is terminal; consent timeout and denial both close
// the session before a ticket exists.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/audit"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

// DefaultConsentTimeout bounds how long a pending consent prompt may
// stay unanswered before the session closes.
const DefaultConsentTimeout = 30 * time.Second

// RecordSource resolves the pairing record for an operator.
// pairing.PairingStore satisfies it.
type RecordSource interface {
	GetRecord(ctx context.Context, deviceID, operatorID identity.ID) (*pairing.Record, error)
}

// Authorizer drives session authorization for one device identity.
type Authorizer struct {
	keys    *identity.Keys
	records RecordSource
	tickets TicketStore
	consent policy.SessionConsentPolicy

	logger         *slog.Logger
	emitter        audit.EventEmitter
	now            func() time.Time
	ticketTTL      time.Duration
	consentTimeout time.Duration
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// WithEmitter sets the audit event emitter.
func WithEmitter(e audit.EventEmitter) Option {
	return func(a *Authorizer) { a.emitter = e }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// WithTicketTTL sets the validity window of minted tickets.
func WithTicketTTL(ttl time.Duration) Option {
	return func(a *Authorizer) { a.ticketTTL = ttl }
}

// WithConsentTimeout sets the deadline for pending consent prompts.
func WithConsentTimeout(d time.Duration) Option {
	return func(a *Authorizer) { a.consentTimeout = d }
}

// NewAuthorizer creates a session authorizer for the device owning keys.
func NewAuthorizer(keys *identity.Keys, records RecordSource, tickets TicketStore, consent policy.SessionConsentPolicy, opts ...Option) *Authorizer {
	a := &Authorizer{
		keys:           keys,
		records:        records,
		tickets:        tickets,
		consent:        consent,
		logger:         slog.Default(),
		emitter:        audit.NopEmitter{},
		now:            time.Now,
		ticketTTL:      DefaultTicketTTL,
		consentTimeout: DefaultConsentTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize runs the full authorization flow for an inbound session
// request: pairing check, consent, then ticket mint. The returned
// ticket is signed and persisted.
func (a *Authorizer) Authorize(ctx context.Context, operatorID identity.ID) (*Ticket, error) {
	a.emit(audit.EventSessionInit, operatorID, nil)

	rec, err := a.activeRecord(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	unattended := rec.UnattendedEnabled && !rec.RequireConsentEachTime
	if err := a.obtainConsent(ctx, rec, unattended); err != nil {
		return nil, err
	}

	return a.mint(ctx, rec)
}

// activeRecord loads the pairing record and rejects missing or revoked
// pairs with session.not_paired.
func (a *Authorizer) activeRecord(ctx context.Context, operatorID identity.ID) (*pairing.Record, error) {
	rec, err := a.records.GetRecord(ctx, a.keys.ID(), operatorID)
	if errors.Is(err, pairing.ErrRecordNotFound) {
		return nil, protoerr.New(protoerr.CodeNotPaired, "no pairing record").
			With("operator_id", operatorID.String())
	}
	if err != nil {
		return nil, err
	}
	if !rec.Active() {
		return nil, protoerr.New(protoerr.CodeNotPaired, "pairing revoked").
			With("operator_id", operatorID.String())
	}
	return rec, nil
}

// obtainConsent applies the consent policy. Unattended sessions skip
// the prompt entirely; everything else blocks on the policy, with
// pending answers awaited under the consent timeout.
func (a *Authorizer) obtainConsent(ctx context.Context, rec *pairing.Record, unattended bool) error {
	if unattended {
		return nil
	}

	decision, err := a.consent.RequestConsent(ctx, policy.ConsentRequest{
		DeviceID:    rec.DeviceID,
		OperatorID:  rec.OperatorID,
		Permissions: rec.Permissions,
		Unattended:  false,
	})
	if err != nil {
		return err
	}

	switch decision.State {
	case policy.ConsentApproved:
		return nil
	case policy.ConsentDenied:
		return protoerr.New(protoerr.CodeConsentDenied, "consent denied").
			With("operator_id", rec.OperatorID.String()).
			With("reason", decision.Reason)
	}

	// Pending: the answer arrives on the channel or not at all.
	timer := time.NewTimer(a.consentTimeout)
	defer timer.Stop()

	select {
	case ans := <-decision.Answer:
		if !ans.Approved {
			return protoerr.New(protoerr.CodeConsentDenied, "consent denied").
				With("operator_id", rec.OperatorID.String()).
				With("reason", ans.Reason)
		}
		return nil
	case <-timer.C:
		return protoerr.New(protoerr.CodeConsentTimeout, "consent prompt unanswered").
			With("operator_id", rec.OperatorID.String()).
			With("timeout", a.consentTimeout.String())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mint issues a signed ticket with a fresh binding nonce and the
// record's permission snapshot.
func (a *Authorizer) mint(ctx context.Context, rec *pairing.Record) (*Ticket, error) {
	binding, err := cryptoutil.RandomBytes(BindingSize)
	if err != nil {
		return nil, err
	}

	now := a.now()
	t := &Ticket{
		ID:          identity.NewID(),
		DeviceID:    rec.DeviceID,
		OperatorID:  rec.OperatorID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(a.ticketTTL),
		Permissions: rec.Permissions,
	}
	copy(t.Binding[:], binding)

	hash := t.signingTranscript()
	t.Signature = a.keys.Sign(hash[:])

	if err := a.tickets.PutTicket(ctx, t); err != nil {
		return nil, err
	}

	a.emit(audit.EventTicketIssued, rec.OperatorID, map[string]string{
		"ticket_id":   t.ID.String(),
		"expires_at":  t.ExpiresAt.UTC().Format(time.RFC3339),
		"permissions": t.Permissions.String(),
	})
	return t, nil
}

// Validate checks a presented ticket for one connection attempt.
//
// Order is deliberate: expiry is checked first so an expired ticket
// always reports session.ticket_expired, even when its signature is
// also wrong. Then the signature, then the transport binding, and
// finally the pairing record: tickets are multi-use, so every use
// re-checks that the pairing has not been revoked since mint.
func (a *Authorizer) Validate(ctx context.Context, t *Ticket, binding [BindingSize]byte) error {
	if err := a.validate(ctx, t, binding); err != nil {
		a.emit(audit.EventTicketRejected, t.OperatorID, map[string]string{
			"ticket_id": t.ID.String(),
			"code":      protoerr.Code(err),
		})
		return err
	}
	a.emit(audit.EventTicketValidated, t.OperatorID, map[string]string{
		"ticket_id": t.ID.String(),
	})
	return nil
}

func (a *Authorizer) validate(ctx context.Context, t *Ticket, binding [BindingSize]byte) error {
	now := a.now()
	if t.Expired(now) {
		return protoerr.New(protoerr.CodeTicketExpired, "ticket expired").
			With("ticket_id", t.ID.String()).
			With("expired_at", t.ExpiresAt.UTC().Format(time.RFC3339))
	}

	device, err := a.keys.Public()
	if err != nil {
		return err
	}
	if t.DeviceID != device.ID {
		return protoerr.New(protoerr.CodeTicketInvalidSig, "ticket issued for a different device").
			With("ticket_id", t.ID.String())
	}
	hash := t.signingTranscript()
	if !cryptoutil.Verify(device.SigningPub, hash[:], t.Signature) {
		return protoerr.New(protoerr.CodeTicketInvalidSig, "ticket signature verification failed").
			With("ticket_id", t.ID.String())
	}

	if subtle.ConstantTimeCompare(t.Binding[:], binding[:]) != 1 {
		return protoerr.New(protoerr.CodeTicketBinding, "ticket binding does not match connection").
			With("ticket_id", t.ID.String())
	}

	if _, err := a.activeRecord(ctx, t.OperatorID); err != nil {
		return err
	}
	return nil
}

// Start validates the ticket and opens the running session with derived
// keys and a fresh replay filter.
func (a *Authorizer) Start(ctx context.Context, t *Ticket, binding [BindingSize]byte) (*Session, error) {
	if err := a.Validate(ctx, t, binding); err != nil {
		return nil, err
	}
	return newSession(t, a.logger, a.emitter)
}

func (a *Authorizer) emit(et audit.EventType, actorID identity.ID, details map[string]string) {
	ev := audit.New(et, a.keys.ID().String(), actorID.String(), details)
	if err := a.emitter.Emit(ev); err != nil {
		a.logger.Warn("audit emit failed", "event", string(et), "error", err)
	}
}
