// Package store provides the persistence adapters for pairing invites,
// pairing records, session tickets, and transport fingerprint pins. The
// interfaces live with their consumers (pkg/pairing, pkg/session,
// pkg/binding); this package implements them in memory and on SQLite.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/binding"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/session"
)

// Memory is a mutex-guarded in-memory store for tests and embedded use.
// It implements pairing.InviteStore, pairing.PairingStore,
// session.TicketStore, and binding.PinStore.
type Memory struct {
	mu      sync.Mutex
	invites map[identity.ID]*pairing.Invite
	records map[recordKey]*pairing.Record
	tickets map[identity.ID]*session.Ticket
	pins    map[identity.ID][binding.FingerprintSize]byte
}

type recordKey struct {
	device   identity.ID
	operator identity.ID
}

var (
	_ pairing.InviteStore  = (*Memory)(nil)
	_ pairing.PairingStore = (*Memory)(nil)
	_ session.TicketStore  = (*Memory)(nil)
	_ binding.PinStore     = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		invites: make(map[identity.ID]*pairing.Invite),
		records: make(map[recordKey]*pairing.Record),
		tickets: make(map[identity.ID]*session.Ticket),
		pins:    make(map[identity.ID][binding.FingerprintSize]byte),
	}
}

// ----- pairing.InviteStore -----

func (m *Memory) PutInvite(_ context.Context, inv *pairing.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invites[inv.ID] = &cp
	return nil
}

func (m *Memory) GetInvite(_ context.Context, id identity.ID) (*pairing.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return nil, pairing.ErrInviteNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *Memory) ListInvites(_ context.Context) ([]*pairing.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pairing.Invite, 0, len(m.invites))
	for _, inv := range m.invites {
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ConsumeInvite(_ context.Context, id identity.ID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok || inv.Status != pairing.InvitePending || inv.Expired(now) {
		return pairing.ErrInviteNotConsumable
	}
	inv.Status = pairing.InviteConsumed
	return nil
}

func (m *Memory) RevokeInvite(_ context.Context, id identity.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return pairing.ErrInviteNotFound
	}
	inv.Status = pairing.InviteRevoked
	return nil
}

// ----- pairing.PairingStore -----

func (m *Memory) PutRecord(_ context.Context, rec *pairing.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[recordKey{rec.DeviceID, rec.OperatorID}] = &cp
	return nil
}

func (m *Memory) GetRecord(_ context.Context, deviceID, operatorID identity.ID) (*pairing.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey{deviceID, operatorID}]
	if !ok {
		return nil, pairing.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) ListRecords(_ context.Context) ([]*pairing.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pairing.Record, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) RevokeRecord(_ context.Context, deviceID, operatorID identity.ID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey{deviceID, operatorID}]
	if !ok {
		return pairing.ErrRecordNotFound
	}
	if rec.Status != pairing.RecordRevoked {
		rec.Status = pairing.RecordRevoked
		rec.RevokedAt = now
	}
	return nil
}

// ----- session.TicketStore -----

func (m *Memory) PutTicket(_ context.Context, t *session.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *Memory) GetTicket(_ context.Context, id identity.ID) (*session.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, session.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListTickets(_ context.Context) ([]*session.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tickets {
		if t.Expired(now) {
			delete(m.tickets, id)
			n++
		}
	}
	return n, nil
}

// ----- binding.PinStore -----

func (m *Memory) GetPin(_ context.Context, peerID identity.ID) ([binding.FingerprintSize]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.pins[peerID]
	return fp, ok, nil
}

func (m *Memory) PutPin(_ context.Context, peerID identity.ID, fp [binding.FingerprintSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[peerID] = fp
	return nil
}

func (m *Memory) DeletePin(_ context.Context, peerID identity.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, peerID)
	return nil
}
