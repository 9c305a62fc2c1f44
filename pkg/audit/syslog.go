package audit

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

const (
	reconnectBackoffInit = 100 * time.Millisecond
	reconnectBackoffMax  = 30 * time.Second
)

// SyslogEmitter writes protocol events to the local syslog daemon as
// RFC 5424 messages with structured data.
//
// On write failure the emitter attempts to reconnect to the syslog socket
// with exponential backoff (100ms initial, 30s cap). This handles transient
// syslog restarts without tight-looping.
type SyslogEmitter struct {
	hostname   string
	appName    string
	socketPath string

	mu              sync.Mutex
	conn            net.Conn
	backoff         time.Duration
	lastReconnectAt time.Time
}

// SyslogConfig holds configuration for the syslog emitter.
type SyslogConfig struct {
	SocketPath string // Default: "/dev/log"
	Hostname   string // Default: os.Hostname()
	AppName    string // Default: "pairingd"
}

// NewSyslogEmitter creates a SyslogEmitter that writes RFC 5424 messages
// to the local syslog daemon. Returns an error if the syslog socket is
// unavailable. Callers should degrade gracefully on error (slog-only audit
// is acceptable).
func NewSyslogEmitter(cfg SyslogConfig) (*SyslogEmitter, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/dev/log"
	}
	if cfg.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			cfg.Hostname = "unknown"
		} else {
			cfg.Hostname = h
		}
	}
	if cfg.AppName == "" {
		cfg.AppName = "pairingd"
	}

	conn, err := dialSyslog(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("syslog connect: %w", err)
	}

	return &SyslogEmitter{
		conn:       conn,
		hostname:   cfg.Hostname,
		appName:    cfg.AppName,
		socketPath: cfg.SocketPath,
	}, nil
}

// Emit formats the event per RFC 5424 and writes it to the syslog socket.
// Safe to call on a nil receiver (returns nil).
func (w *SyslogEmitter) Emit(ev Event) error {
	if w == nil {
		return nil
	}
	data := FormatMessage(messageFromEvent(ev, w.hostname, w.appName))

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		if err := w.reconnectLocked(); err != nil {
			return err
		}
	}
	if _, err := w.conn.Write(append(data, '\n')); err != nil {
		w.conn.Close()
		w.conn = nil
		if rerr := w.reconnectLocked(); rerr != nil {
			return fmt.Errorf("syslog write: %w", err)
		}
		if _, err := w.conn.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("syslog write after reconnect: %w", err)
		}
	}
	return nil
}

// Close releases the syslog connection.
func (w *SyslogEmitter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// reconnectLocked re-dials the syslog socket under exponential backoff.
// Caller must hold w.mu.
func (w *SyslogEmitter) reconnectLocked() error {
	if w.backoff == 0 {
		w.backoff = reconnectBackoffInit
	}
	if since := time.Since(w.lastReconnectAt); since < w.backoff {
		return fmt.Errorf("syslog unavailable, retry in %s", w.backoff-since)
	}
	w.lastReconnectAt = time.Now()

	conn, err := dialSyslog(w.socketPath)
	if err != nil {
		w.backoff *= 2
		if w.backoff > reconnectBackoffMax {
			w.backoff = reconnectBackoffMax
		}
		return fmt.Errorf("syslog reconnect: %w", err)
	}
	w.conn = conn
	w.backoff = 0
	return nil
}

// dialSyslog connects to the syslog daemon, preferring the datagram socket.
func dialSyslog(path string) (net.Conn, error) {
	conn, err := net.DialTimeout("unixgram", path, time.Second)
	if err == nil {
		return conn, nil
	}
	return net.DialTimeout("unix", path, time.Second)
}
