package dispatch_test

import (
	"context"
	"testing"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/binding"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/dispatch"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/envelope"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/session"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/store"
)

// testBed wires a device-side dispatcher with the full protocol stack
// and an operator-side dispatcher for building requests.
type testBed struct {
	device       *dispatch.Dispatcher
	operator     *dispatch.Dispatcher
	deviceKeys   *identity.Keys
	operatorKeys *identity.Keys
	devicePub    identity.Identity
	operatorPub  identity.Identity
	manager      *pairing.Manager
	mem          *store.Memory
}

func newTestBed(t *testing.T) *testBed {
	t.Helper()

	deviceKeys, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(deviceKeys.Destroy)
	devicePub, err := deviceKeys.Public()
	if err != nil {
		t.Fatal(err)
	}

	operatorKeys, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(operatorKeys.Destroy)
	operatorPub, err := operatorKeys.Public()
	if err != nil {
		t.Fatal(err)
	}

	mem := store.NewMemory()
	manager := pairing.NewManager(deviceKeys, mem, mem, policy.StaticApprover{Grant: policy.PermAll})
	authorizer := session.NewAuthorizer(deviceKeys, mem, mem, policy.AutoConsent{Approve: true})
	verifier := binding.NewVerifier(mem)

	// The device resolves the operator once the out-of-band invite
	// exchange has shared identities; unknown senders stay unresolved.
	deviceResolve := func(_ context.Context, id identity.ID) (identity.Identity, error) {
		if id == operatorPub.ID {
			return operatorPub, nil
		}
		return identity.Identity{}, protoerr.New(protoerr.CodeIdentityMismatch, "unknown sender")
	}
	operatorResolve := func(_ context.Context, id identity.ID) (identity.Identity, error) {
		return devicePub, nil
	}

	device := dispatch.New(deviceKeys, deviceResolve)
	localFP := binding.Fingerprint([]byte("device transport certificate"))
	device.Handle(envelope.MsgPairRequest, dispatch.PairingHandler(manager, deviceKeys))
	device.Handle(envelope.MsgSessionInit, dispatch.SessionHandler(authorizer))
	device.Handle(envelope.MsgBindingProof, dispatch.BindingHandler(verifier, deviceKeys, localFP))

	return &testBed{
		device:       device,
		operator:     dispatch.New(operatorKeys, operatorResolve),
		deviceKeys:   deviceKeys,
		operatorKeys: operatorKeys,
		devicePub:    devicePub,
		operatorPub:  operatorPub,
		manager:      manager,
		mem:          mem,
	}
}

// pair runs the full invite/pair-request exchange through both
// dispatchers and returns the receipt body.
func (b *testBed) pair(t *testing.T) dispatch.PairReceiptBody {
	t.Helper()
	ctx := context.Background()

	inv, secret, err := b.manager.CreateInvite(ctx)
	if err != nil {
		t.Fatal(err)
	}

	requested := policy.PermViewScreen | policy.PermControlInput
	body, err := envelope.MarshalBody(dispatch.PairRequestBody{
		InviteID:   inv.ID[:],
		Secret:     secret,
		SigningPub: b.operatorPub.SigningPub,
		KexPub:     b.operatorPub.KexPub,
		Requested:  uint32(requested),
		Proof:      pairing.BuildProof(secret, inv.ID, b.devicePub.ID, b.operatorPub, requested),
	})
	if err != nil {
		t.Fatal(err)
	}

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgPairRequest, body)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	replyWire, err := b.device.Receive(ctx, wire)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	var receipt dispatch.PairReceiptBody
	replyEnv, err := envelope.Decode(replyWire)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if replyEnv.Type != envelope.MsgPairReceipt {
		t.Fatalf("reply type = %v, want pair_receipt", replyEnv.Type)
	}
	payload, err := envelope.Open(b.operatorKeys, b.devicePub, replyEnv)
	if err != nil {
		t.Fatalf("open reply: %v", err)
	}
	if err := envelope.UnmarshalBody(payload, &receipt); err != nil {
		t.Fatal(err)
	}
	return receipt
}

func TestDispatch_PairExchange(t *testing.T) {
	t.Log("A pair request routed through both dispatchers yields a sealed, verifiable receipt")

	b := newTestBed(t)
	receipt := b.pair(t)

	if policy.Permissions(receipt.Permissions) != policy.PermViewScreen|policy.PermControlInput {
		t.Errorf("granted = %v", policy.Permissions(receipt.Permissions))
	}
	got, err := pairing.VerifyJWS(receipt.ReceiptJWS, b.devicePub)
	if err != nil {
		t.Fatalf("receipt JWS must verify: %v", err)
	}
	if !got.Operator.Equal(b.operatorPub) {
		t.Error("receipt must pin the operator identity")
	}
}

func TestDispatch_SessionInitAfterPairing(t *testing.T) {
	b := newTestBed(t)
	b.pair(t)
	ctx := context.Background()

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgSessionInit, nil)
	if err != nil {
		t.Fatal(err)
	}
	replyWire, err := b.device.Receive(ctx, wire)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	replyEnv, err := envelope.Decode(replyWire)
	if err != nil {
		t.Fatal(err)
	}
	if replyEnv.Type != envelope.MsgSessionTicket {
		t.Fatalf("reply type = %v, want session_ticket", replyEnv.Type)
	}
	payload, err := envelope.Open(b.operatorKeys, b.devicePub, replyEnv)
	if err != nil {
		t.Fatal(err)
	}
	ticket, err := session.DecodeTicket(payload)
	if err != nil {
		t.Fatalf("DecodeTicket: %v", err)
	}
	if ticket.OperatorID != b.operatorPub.ID {
		t.Error("ticket must name the requesting operator")
	}
}

func TestDispatch_SessionInitWithoutPairing(t *testing.T) {
	b := newTestBed(t)
	ctx := context.Background()

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgSessionInit, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.device.Receive(ctx, wire)
	if !protoerr.Is(err, protoerr.CodeNotPaired) {
		t.Errorf("error = %v, want not_paired", err)
	}
}

func TestDispatch_BindingExchange(t *testing.T) {
	t.Log("A binding proof is verified and answered with the device's own proof")

	b := newTestBed(t)
	ctx := context.Background()

	fp := binding.Fingerprint([]byte("operator transport certificate"))
	proof := binding.Sign(b.operatorKeys, fp)
	body, err := envelope.MarshalBody(dispatch.BindingProofBody{
		Fingerprint: proof.Fingerprint[:],
		Signature:   proof.Signature,
	})
	if err != nil {
		t.Fatal(err)
	}

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgBindingProof, body)
	if err != nil {
		t.Fatal(err)
	}
	replyWire, err := b.device.Receive(ctx, wire)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	replyEnv, err := envelope.Decode(replyWire)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := envelope.Open(b.operatorKeys, b.devicePub, replyEnv)
	if err != nil {
		t.Fatal(err)
	}
	var reply dispatch.BindingProofBody
	if err := envelope.UnmarshalBody(payload, &reply); err != nil {
		t.Fatal(err)
	}

	// The reply proof must verify against the device identity.
	var replyFP [binding.FingerprintSize]byte
	copy(replyFP[:], reply.Fingerprint)
	deviceProof := &binding.Proof{
		PeerID:      b.devicePub.ID,
		Fingerprint: replyFP,
		Signature:   reply.Signature,
	}
	v := binding.NewVerifier(store.NewMemory())
	if err := v.Verify(ctx, b.devicePub, deviceProof); err != nil {
		t.Errorf("device binding proof must verify: %v", err)
	}
}

func TestDispatch_UnknownSenderRejected(t *testing.T) {
	b := newTestBed(t)
	ctx := context.Background()

	strangerKeys, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	defer strangerKeys.Destroy()
	stranger := dispatch.New(strangerKeys, func(_ context.Context, _ identity.ID) (identity.Identity, error) {
		return b.devicePub, nil
	})

	wire, err := stranger.Send(ctx, b.devicePub, envelope.MsgSessionInit, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.device.Receive(ctx, wire)
	if !protoerr.Is(err, protoerr.CodeIdentityMismatch) {
		t.Errorf("error = %v, want identity_mismatch", err)
	}
}

func TestDispatch_UnhandledTypeRejected(t *testing.T) {
	t.Log("A known type with no registered handler is rejected without side effects")

	b := newTestBed(t)
	ctx := context.Background()

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgData, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.device.Receive(ctx, wire)
	if !protoerr.Is(err, protoerr.CodeUnknownMessageType) {
		t.Errorf("error = %v, want unknown_message_type", err)
	}
}

func TestDispatch_UnknownTypeRejectedBeforeOpen(t *testing.T) {
	t.Log("A type outside the closed set is rejected before decryption or handlers run")

	b := newTestBed(t)
	ctx := context.Background()

	wire, err := b.operator.Send(ctx, b.devicePub, envelope.MsgData, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	env, err := envelope.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	env.Type = envelope.MsgType(99)
	raw, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.device.Receive(ctx, raw)
	if !protoerr.Is(err, protoerr.CodeUnknownMessageType) {
		t.Errorf("error = %v, want unknown_message_type", err)
	}
}

func TestDispatch_MalformedFrameRejected(t *testing.T) {
	b := newTestBed(t)
	if _, err := b.device.Receive(context.Background(), []byte{0x01, 0x02}); err == nil {
		t.Error("malformed frame must be rejected")
	}
}
