// Package audit defines security-relevant observability events for the
// pairing and session protocol and emitters that deliver them to external
// sinks. Emission failures are logged, never propagated: audit must not
// block protocol operations.
package audit

import "time"

// Severity represents syslog severity levels per RFC 5424.
type Severity int

const (
	SeverityEmergency Severity = 0
	SeverityAlert     Severity = 1
	SeverityCritical  Severity = 2
	SeverityError     Severity = 3
	SeverityWarning   Severity = 4
	SeverityNotice    Severity = 5
	SeverityInfo      Severity = 6
	SeverityDebug     Severity = 7
)

// String returns the human-readable name for a severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityNotice:
		return "NOTICE"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a security-relevant protocol event.
type EventType string

const (
	EventPairRequestReceived EventType = "pair.request_received"
	EventPairApproved        EventType = "pair.approved"
	EventPairDenied          EventType = "pair.denied"
	EventPairRevoked         EventType = "pair.revoked"
	EventSessionInit         EventType = "session.init_requested"
	EventTicketIssued        EventType = "session.ticket_issued"
	EventTicketValidated     EventType = "session.ticket_validated"
	EventTicketRejected      EventType = "session.ticket_rejected"
	EventReplayDetected      EventType = "replay.detected"
	EventFingerprintChanged  EventType = "binding.fingerprint_changed"
)

// AllEventTypes returns every defined event type for iteration and validation.
func AllEventTypes() []EventType {
	return []EventType{
		EventPairRequestReceived,
		EventPairApproved,
		EventPairDenied,
		EventPairRevoked,
		EventSessionInit,
		EventTicketIssued,
		EventTicketValidated,
		EventTicketRejected,
		EventReplayDetected,
		EventFingerprintChanged,
	}
}

// severityMap maps each event type to its syslog severity.
var severityMap = map[EventType]Severity{
	EventPairRequestReceived: SeverityInfo,
	EventPairApproved:        SeverityNotice,
	EventPairDenied:          SeverityWarning,
	EventPairRevoked:         SeverityWarning,
	EventSessionInit:         SeverityInfo,
	EventTicketIssued:        SeverityNotice,
	EventTicketValidated:     SeverityInfo,
	EventTicketRejected:      SeverityWarning,
	EventReplayDetected:      SeverityWarning,
	EventFingerprintChanged:  SeverityWarning,
}

// SeverityFor returns the syslog severity for a given event type.
// Unknown event types return SeverityWarning (fail-secure: treat unknowns
// as concerning).
func SeverityFor(et EventType) Severity {
	if s, ok := severityMap[et]; ok {
		return s
	}
	return SeverityWarning
}

// Event is a security-relevant protocol event with structured fields.
type Event struct {
	Type      EventType
	Severity  Severity
	Timestamp time.Time
	DeviceID  string            // Device identity involved, if known
	ActorID   string            // Operator or peer identity involved, if known
	Details   map[string]string // Event-specific fields (ticket_id, stream_id, code, ...)
}

// New constructs an event with the severity derived from its type.
func New(et EventType, deviceID, actorID string, details map[string]string) Event {
	return Event{
		Type:      et,
		Severity:  SeverityFor(et),
		Timestamp: time.Now(),
		DeviceID:  deviceID,
		ActorID:   actorID,
		Details:   details,
	}
}
