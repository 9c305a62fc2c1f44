// Package protoerr defines the structured error taxonomy for the pairing
// and session-authorization protocol. Every verification failure in the
// core maps to one of the codes below; callers match on codes rather than
// message text, and each error carries enough context identifiers for
// audit logging.
package protoerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Protocol error codes. These are stable identifiers: they appear in audit
// events and logs and must not be renamed.
const (
	CodeSignatureInvalid   = "envelope.signature_invalid"       // Envelope signature did not verify against the pinned key
	CodeDecryptionFailed   = "envelope.decryption_failed"       // AEAD open failed after a valid signature
	CodeIdentityMismatch   = "envelope.identity_mismatch"       // Header sender_id does not match the pinned identity
	CodeInviteExpired      = "pair.invite_expired"              // Invite TTL exceeded
	CodeInviteAlreadyUsed  = "pair.invite_already_used"         // Invite consumed by an earlier proof
	CodeInviteInvalidProof = "pair.invalid_proof"               // HMAC proof did not match the invite secret
	CodePairingDenied      = "pair.denied"                      // Pairing approver rejected the proposed permissions
	CodeNotPaired          = "session.not_paired"               // No Paired record for the device/operator pair
	CodeConsentTimeout     = "session.consent_timeout"          // Consent policy did not answer within the deadline
	CodeConsentDenied      = "session.consent_denied"           // Consent policy rejected the session
	CodeTicketExpired      = "session.ticket_expired"           // Ticket expiry is in the past
	CodeTicketInvalidSig   = "session.ticket_invalid_signature" // Ticket signature did not verify
	CodeTicketBinding      = "session.ticket_binding_mismatch"  // Ticket binding does not match the connection context
	CodeSessionClosed      = "session.closed"                   // Session is terminal; no further envelopes accepted
	CodeReplayDetected     = "replay.detected"                  // Duplicate or out-of-window data-plane counter
	CodeFingerprintChanged = "binding.fingerprint_changed"      // Known device presented a different transport fingerprint
	CodeBindingInvalid     = "binding.invalid_signature"        // Transport binding proof did not verify
	CodeUnknownMessageType = "dispatch.unknown_message_type"    // Envelope msg_type outside the closed set
)

// ProtocolError is a protocol failure with a stable code and optional
// context identifiers (device_id, ticket_id, stream_id, ...).
type ProtocolError struct {
	Code    string
	Message string
	Context map[string]string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	b.WriteString(" (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
	}
	b.WriteString(")")
	return b.String()
}

// New creates a ProtocolError with the given code and message.
func New(code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// Newf creates a ProtocolError with a formatted message.
func Newf(code, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of the error with an added context identifier.
func (e *ProtocolError) With(key, value string) *ProtocolError {
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &ProtocolError{Code: e.Code, Message: e.Message, Context: ctx}
}

// Code extracts the protocol error code from an error.
// Returns empty string if the error is not a ProtocolError.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Is reports whether err is or wraps a ProtocolError with the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}
