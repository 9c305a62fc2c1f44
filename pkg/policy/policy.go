// Package policy holds the decision points of the pairing and session
// flows: who may pair, which permissions they get, and whether a
// connection needs the local user's consent. The protocol state machines
// call these interfaces and never decide on their own.
package policy

import (
	"context"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

// PairingRequest describes a proof-verified pairing attempt awaiting
// approval.
type PairingRequest struct {
	DeviceID   identity.ID
	OperatorID identity.ID
	// Requested is the permission mask the operator asked for.
	Requested Permissions
}

// PairingDecision is the approver's verdict. Granted may be narrower than
// the requested mask; it is meaningful only when Approved is true.
type PairingDecision struct {
	Approved bool
	Granted  Permissions
	Reason   string
}

// PairingApprover decides whether a proof-verified pairing request
// becomes a pairing record, and with which permissions.
type PairingApprover interface {
	ApprovePairing(ctx context.Context, req PairingRequest) (PairingDecision, error)
}

// ConsentState is the immediate outcome of a consent request.
type ConsentState int

const (
	// ConsentApproved authorizes the session without further interaction.
	ConsentApproved ConsentState = iota
	// ConsentDenied rejects the session.
	ConsentDenied
	// ConsentPending defers the verdict to the Answer channel, typically
	// a prompt shown to the local user.
	ConsentPending
)

// String returns the state name for logs.
func (s ConsentState) String() string {
	switch s {
	case ConsentApproved:
		return "approved"
	case ConsentDenied:
		return "denied"
	case ConsentPending:
		return "pending"
	default:
		return "invalid"
	}
}

// ConsentRequest describes an inbound session authorization needing a
// consent verdict.
type ConsentRequest struct {
	DeviceID   identity.ID
	OperatorID identity.ID
	// Permissions is the mask the session would run with.
	Permissions Permissions
	// Unattended is true when the pairing record allows connecting
	// without a prompt and the operator asked to use that.
	Unattended bool
}

// ConsentAnswer resolves a pending consent request.
type ConsentAnswer struct {
	Approved bool
	Reason   string
}

// ConsentDecision carries the immediate state and, when pending, the
// channel the answer will arrive on. The caller owns the timeout.
type ConsentDecision struct {
	State  ConsentState
	Reason string
	// Answer delivers exactly one value when State is ConsentPending.
	Answer <-chan ConsentAnswer
}

// SessionConsentPolicy decides whether an inbound session may proceed.
type SessionConsentPolicy interface {
	RequestConsent(ctx context.Context, req ConsentRequest) (ConsentDecision, error)
}

// StaticApprover approves every pairing request with the intersection of
// the requested mask and a fixed grant mask. Useful for tests and for
// deployments where approval happens out of band.
type StaticApprover struct {
	Grant Permissions
}

// ApprovePairing grants the requested permissions limited to the
// approver's fixed mask. A request left with no permissions is denied.
func (a StaticApprover) ApprovePairing(_ context.Context, req PairingRequest) (PairingDecision, error) {
	granted := req.Requested & a.Grant
	if granted == 0 {
		return PairingDecision{Approved: false, Reason: "no requested permission is grantable"}, nil
	}
	return PairingDecision{Approved: true, Granted: granted}, nil
}

// DenyAllApprover rejects every pairing request.
type DenyAllApprover struct {
	Reason string
}

func (a DenyAllApprover) ApprovePairing(context.Context, PairingRequest) (PairingDecision, error) {
	reason := a.Reason
	if reason == "" {
		reason = "pairing disabled"
	}
	return PairingDecision{Approved: false, Reason: reason}, nil
}

// AutoConsent answers every consent request immediately with a fixed
// verdict.
type AutoConsent struct {
	Approve bool
	Reason  string
}

func (c AutoConsent) RequestConsent(context.Context, ConsentRequest) (ConsentDecision, error) {
	if c.Approve {
		return ConsentDecision{State: ConsentApproved, Reason: c.Reason}, nil
	}
	reason := c.Reason
	if reason == "" {
		reason = "consent refused by policy"
	}
	return ConsentDecision{State: ConsentDenied, Reason: reason}, nil
}

// PromptFunc presents a consent request to the local user and writes
// exactly one answer to reply. It runs on its own goroutine; blocking is
// fine, the session layer enforces the timeout.
type PromptFunc func(req ConsentRequest, reply chan<- ConsentAnswer)

// PromptConsent defers every consent request to a prompt callback,
// returning Pending with the answer channel.
type PromptConsent struct {
	prompt PromptFunc
}

// NewPromptConsent wraps a prompt callback as a consent policy.
func NewPromptConsent(prompt PromptFunc) *PromptConsent {
	return &PromptConsent{prompt: prompt}
}

func (c *PromptConsent) RequestConsent(_ context.Context, req ConsentRequest) (ConsentDecision, error) {
	reply := make(chan ConsentAnswer, 1)
	go c.prompt(req, reply)
	return ConsentDecision{State: ConsentPending, Answer: reply}, nil
}
