package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

// BindingSize is the wire size of the session binding nonce.
const BindingSize = 32

// DefaultTicketTTL is the validity window of a minted ticket. Tickets
// are deliberately short-lived; the pairing record is the durable grant.
const DefaultTicketTTL = 2 * time.Minute

// TicketWireSize is the exact encoded size of a ticket.
const TicketWireSize = 3*identity.IDSize + BindingSize + 8 + 8 + 4 + cryptoutil.SignatureSize

// Transcript tags for the ticket signature. Stable wire constants.
const (
	tagTicketID       uint32 = 0x5201
	tagTicketDevice   uint32 = 0x5202
	tagTicketOperator uint32 = 0x5203
	tagTicketBinding  uint32 = 0x5204
	tagTicketIssuedAt uint32 = 0x5205
	tagTicketExpiry   uint32 = 0x5206
	tagTicketPerms    uint32 = 0x5207
)

// Ticket authorizes one operator to run sessions against one device
// until expiry. It is minted by the device after consent and carried by
// the operator on every connection. Tickets are multi-use within their
// TTL; every connection re-validates them.
type Ticket struct {
	ID          identity.ID
	DeviceID    identity.ID
	OperatorID  identity.ID
	Binding     [BindingSize]byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Permissions policy.Permissions
	Signature   []byte // device Ed25519 over the ticket transcript
}

// Expired reports whether the ticket's TTL has passed. Pass time.Now()
// at the callsite to keep check and use on the same clock reading.
func (t *Ticket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// signingTranscript hashes every ticket field the signature covers.
// Timestamps are committed as unix seconds, matching the wire encoding.
func (t *Ticket) signingTranscript() [transcript.HashSize]byte {
	b := transcript.New()
	b.Append(tagTicketID, t.ID[:])
	b.Append(tagTicketDevice, t.DeviceID[:])
	b.Append(tagTicketOperator, t.OperatorID[:])
	b.Append(tagTicketBinding, t.Binding[:])
	b.AppendUint64(tagTicketIssuedAt, uint64(t.IssuedAt.Unix()))
	b.AppendUint64(tagTicketExpiry, uint64(t.ExpiresAt.Unix()))
	b.AppendUint32(tagTicketPerms, uint32(t.Permissions))
	return b.Finish()
}

// Encode serializes the ticket to its fixed-size wire form, all
// integers big-endian:
//
//	ticket_id 16B ‖ device_id 16B ‖ operator_id 16B ‖ binding 32B ‖
//	issued_at u64 ‖ expiry u64 ‖ permissions u32 ‖ signature 64B
func (t *Ticket) Encode() ([]byte, error) {
	if len(t.Signature) != cryptoutil.SignatureSize {
		return nil, fmt.Errorf("ticket signature must be %d bytes, got %d", cryptoutil.SignatureSize, len(t.Signature))
	}
	buf := make([]byte, 0, TicketWireSize)
	buf = append(buf, t.ID[:]...)
	buf = append(buf, t.DeviceID[:]...)
	buf = append(buf, t.OperatorID[:]...)
	buf = append(buf, t.Binding[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.IssuedAt.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.ExpiresAt.Unix()))
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.Permissions))
	buf = append(buf, t.Signature...)
	return buf, nil
}

// DecodeTicket parses a ticket from wire bytes. The frame must be
// exactly one ticket.
func DecodeTicket(data []byte) (*Ticket, error) {
	if len(data) != TicketWireSize {
		return nil, fmt.Errorf("ticket must be %d bytes, got %d", TicketWireSize, len(data))
	}
	var t Ticket
	off := 0
	copy(t.ID[:], data[off:])
	off += identity.IDSize
	copy(t.DeviceID[:], data[off:])
	off += identity.IDSize
	copy(t.OperatorID[:], data[off:])
	off += identity.IDSize
	copy(t.Binding[:], data[off:])
	off += BindingSize
	t.IssuedAt = time.Unix(int64(binary.BigEndian.Uint64(data[off:])), 0).UTC()
	off += 8
	t.ExpiresAt = time.Unix(int64(binary.BigEndian.Uint64(data[off:])), 0).UTC()
	off += 8
	t.Permissions = policy.Permissions(binary.BigEndian.Uint32(data[off:]))
	off += 4
	t.Signature = append([]byte(nil), data[off:off+cryptoutil.SignatureSize]...)
	return &t, nil
}

// ErrTicketNotFound is returned by TicketStore implementations for
// unknown ticket ids.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketStore persists minted tickets for lookup and revocation sweeps.
type TicketStore interface {
	PutTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id identity.ID) (*Ticket, error)
	ListTickets(ctx context.Context) ([]*Ticket, error)
	// DeleteExpired removes tickets whose expiry is at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
