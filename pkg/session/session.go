package session

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/audit"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/replay"
)

// State is the session lifecycle state.
type State int

const (
	StateRequested State = iota
	StateConsentPending
	StateAuthorized
	StateActive
	StateClosed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateConsentPending:
		return "consent_pending"
	case StateAuthorized:
		return "authorized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Session is a running, authorized session. It owns the directional
// AEAD keys and the replay filter for its data plane. Close is terminal;
// a closed session rejects every further message.
type Session struct {
	ticket *Ticket
	keys   *Keys
	filter *replay.Filter

	logger  *slog.Logger
	emitter audit.EventEmitter

	mu    sync.Mutex
	state State
}

func newSession(t *Ticket, logger *slog.Logger, emitter audit.EventEmitter) (*Session, error) {
	keys, err := DeriveKeys(t)
	if err != nil {
		return nil, err
	}
	logger.Info("session started",
		"ticket_id", t.ID.String(),
		"operator_id", t.OperatorID.String(),
		"permissions", t.Permissions.String(),
	)
	return &Session{
		ticket:  t,
		keys:    keys,
		filter:  replay.NewFilter(),
		logger:  logger,
		emitter: emitter,
		state:   StateActive,
	}, nil
}

// Ticket returns the ticket the session runs under.
func (s *Session) Ticket() *Ticket {
	return s.ticket
}

// Keys returns the directional session keys.
func (s *Session) Keys() *Keys {
	return s.keys
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AcceptData admits one data-plane message identified by its
// deterministic nonce (stream id and counter). Duplicates and
// out-of-window counters fail with replay.detected and are audited.
func (s *Session) AcceptData(streamID uint32, counter uint64) error {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return protoerr.New(protoerr.CodeSessionClosed, "session is closed").
			With("ticket_id", s.ticket.ID.String())
	}

	if err := s.filter.Accept(streamID, counter); err != nil {
		ev := audit.New(audit.EventReplayDetected, s.ticket.DeviceID.String(), s.ticket.OperatorID.String(), map[string]string{
			"ticket_id": s.ticket.ID.String(),
			"stream_id": strconv.FormatUint(uint64(streamID), 10),
			"counter":   strconv.FormatUint(counter, 10),
		})
		if emitErr := s.emitter.Emit(ev); emitErr != nil {
			s.logger.Warn("audit emit failed", "event", string(audit.EventReplayDetected), "error", emitErr)
		}
		return err
	}
	return nil
}

// Close terminates the session and scrubs its key material. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.keys.Destroy()
	s.logger.Info("session closed", "ticket_id", s.ticket.ID.String())
}
