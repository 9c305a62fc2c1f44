// Package dispatch routes sealed envelopes between the transport and
// the protocol state machines. The transport hands in raw bytes and
// gets raw bytes back; dispatch owns decode, sender resolution, open,
// and per-type routing.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/envelope"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

// Resolver looks up the pinned identity for an envelope sender. It
// returns protoerr.CodeIdentityMismatch-worthy failures as plain
// errors; unknown senders must not be processed.
type Resolver func(ctx context.Context, id identity.ID) (identity.Identity, error)

// Handler processes one opened payload and returns an optional reply
// body to be sealed back to the sender.
type Handler func(ctx context.Context, sender identity.Identity, payload []byte) ([]byte, error)

// replyType maps a request type to the type of its sealed reply.
var replyType = map[envelope.MsgType]envelope.MsgType{
	envelope.MsgPairRequest:  envelope.MsgPairReceipt,
	envelope.MsgSessionInit:  envelope.MsgSessionTicket,
	envelope.MsgBindingProof: envelope.MsgBindingProof,
	envelope.MsgData:         envelope.MsgData,
}

// Dispatcher routes inbound envelopes to registered handlers and seals
// outbound messages.
type Dispatcher struct {
	keys     *identity.Keys
	resolve  Resolver
	handlers map[envelope.MsgType]Handler
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher for the identity owning keys. Handlers are
// registered with Handle before the transport delivers traffic.
func New(keys *identity.Keys, resolve Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		keys:     keys,
		resolve:  resolve,
		handlers: make(map[envelope.MsgType]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers the handler for one message type, replacing any
// previous registration.
func (d *Dispatcher) Handle(t envelope.MsgType, h Handler) {
	d.handlers[t] = h
}

// Receive processes one inbound frame: decode, resolve the pinned
// sender, open, route. The returned bytes, if any, are the sealed reply
// for the transport to deliver.
//
// An unknown message type is rejected before the envelope is opened and
// before any handler runs; a frame outside the closed type set has no
// side effects.
func (d *Dispatcher) Receive(ctx context.Context, raw []byte) ([]byte, error) {
	env, err := envelope.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !env.Type.Known() {
		return nil, protoerr.New(protoerr.CodeUnknownMessageType, "message type outside the closed set").
			With("msg_type", env.Type.String())
	}
	handler, ok := d.handlers[env.Type]
	if !ok {
		return nil, protoerr.New(protoerr.CodeUnknownMessageType, "no handler registered").
			With("msg_type", env.Type.String())
	}

	sender, err := d.resolve(ctx, env.SenderID)
	if err != nil {
		return nil, protoerr.New(protoerr.CodeIdentityMismatch, "unknown sender").
			With("sender_id", env.SenderID.String())
	}

	payload, err := envelope.Open(d.keys, sender, env)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("envelope dispatched",
		"msg_type", env.Type.String(),
		"sender_id", env.SenderID.String(),
	)

	reply, err := handler(ctx, sender, payload)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}
	return d.Send(ctx, sender, replyType[env.Type], reply)
}

// Send seals a message to the recipient and returns the wire bytes for
// the external transport.
func (d *Dispatcher) Send(_ context.Context, recipient identity.Identity, t envelope.MsgType, body []byte) ([]byte, error) {
	env, err := envelope.Seal(d.keys, recipient, t, body, nil)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}
