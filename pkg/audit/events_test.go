package audit

import (
	"strings"
	"testing"
	"time"
)

func TestSeverityFor_AllEventTypesMapped(t *testing.T) {
	for _, et := range AllEventTypes() {
		if _, ok := severityMap[et]; !ok {
			t.Errorf("event type %q has no severity mapping", et)
		}
	}
}

func TestSeverityFor_UnknownFailsSecure(t *testing.T) {
	if got := SeverityFor(EventType("made.up")); got != SeverityWarning {
		t.Errorf("unknown event severity = %v, want WARNING", got)
	}
}

func TestNew_DerivesSeverity(t *testing.T) {
	ev := New(EventReplayDetected, "dev1", "op1", map[string]string{"stream_id": "3"})
	if ev.Severity != SeverityWarning {
		t.Errorf("Severity = %v, want WARNING", ev.Severity)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp must be set")
	}
}

func TestMultiEmitter_FansOut(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	m := NewMultiEmitter(nil, a, b)

	if err := m.Emit(New(EventTicketIssued, "dev1", "op1", nil)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if a.Count() != 1 || b.Count() != 1 {
		t.Errorf("backend counts = %d, %d, want 1, 1", a.Count(), b.Count())
	}
}

func TestFormatMessage_RFC5424Shape(t *testing.T) {
	t.Log("Checking PRI, version, timestamp, and structured data layout")

	ts := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityNotice,
		Timestamp: ts,
		Hostname:  "host1",
		AppName:   "pairingd",
		MessageID: "pair.approved",
		SD: []SDElement{{
			ID: "pairing",
			Params: []SDParam{
				{Name: "device_id", Value: "dev1"},
				{Name: "actor_id", Value: `op"1`},
			},
		}},
	}

	got := string(FormatMessage(msg))

	// PRI = 16*8 + 5 = 133
	if !strings.HasPrefix(got, "<133>1 2026-03-14T09:26:53.589Z host1 pairingd - pair.approved ") {
		t.Errorf("unexpected header: %q", got)
	}
	if !strings.Contains(got, `[pairing device_id="dev1" actor_id="op\"1"]`) {
		t.Errorf("structured data not escaped/laid out as expected: %q", got)
	}
}

func TestFormatMessage_EmptyFieldsAreNil(t *testing.T) {
	got := string(FormatMessage(Message{Facility: FacLocal0, Severity: SeverityInfo}))
	if !strings.HasPrefix(got, "<134>1 - - - - - -") {
		t.Errorf("empty fields must render as NILVALUE: %q", got)
	}
}

func TestMessageFromEvent_SortsDetailKeys(t *testing.T) {
	ev := New(EventTicketValidated, "dev1", "op1", map[string]string{
		"zeta": "1", "alpha": "2",
	})
	msg := messageFromEvent(ev, "h", "a")
	out := string(FormatMessage(msg))
	if strings.Index(out, "alpha=") > strings.Index(out, "zeta=") {
		t.Errorf("detail keys must render sorted: %q", out)
	}
}

func TestSyslogEmitter_NilReceiverIsSafe(t *testing.T) {
	var w *SyslogEmitter
	if err := w.Emit(New(EventPairDenied, "", "", nil)); err != nil {
		t.Errorf("nil emitter must discard events, got %v", err)
	}
}
