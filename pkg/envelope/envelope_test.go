package envelope

import (
	"bytes"
	"testing"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

func newParty(t *testing.T) (*identity.Keys, identity.Identity) {
	t.Helper()
	keys, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	t.Cleanup(keys.Destroy)
	pub, err := keys.Public()
	if err != nil {
		t.Fatalf("Public: %v", err)
	}
	return keys, pub
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Log("open(seal(payload)) must yield payload for valid parties")

	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)

	payload := []byte("session init request body")
	aad := []byte("connection context")

	env, err := Seal(operator, devicePub, MsgSessionInit, payload, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := Open(device, operatorPub, env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round-trip payload mismatch: %q", got)
	}
}

func TestSealOpen_EmptyPayloadAndAAD(t *testing.T) {
	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)

	env, err := Seal(operator, devicePub, MsgData, nil, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(device, operatorPub, env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(got))
	}
}

func TestOpen_TamperingDetected(t *testing.T) {
	t.Log("Flipping any byte must fail with signature_invalid or decryption_failed, never succeed")

	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)

	mutations := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"ciphertext byte", func(e *Envelope) { e.Ciphertext[0] ^= 1 }},
		{"aad byte", func(e *Envelope) { e.AAD[0] ^= 1 }},
		{"nonce byte", func(e *Envelope) { e.Nonce[0] ^= 1 }},
		{"ephemeral byte", func(e *Envelope) { e.EphemeralPub[0] ^= 1 }},
		{"msg type", func(e *Envelope) { e.Type = MsgData }},
		{"signature byte", func(e *Envelope) { e.Signature[0] ^= 1 }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			env, err := Seal(operator, devicePub, MsgSessionInit, []byte("payload"), []byte("aad"))
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			m.mutate(env)

			_, err = Open(device, operatorPub, env)
			if err == nil {
				t.Fatal("tampered envelope must not open")
			}
			code := protoerr.Code(err)
			if code != protoerr.CodeSignatureInvalid && code != protoerr.CodeDecryptionFailed {
				t.Errorf("error code = %q, want signature_invalid or decryption_failed", code)
			}
		})
	}
}

func TestOpen_SignatureCheckedBeforeDecryption(t *testing.T) {
	t.Log("A signature forged over tampered ciphertext must fail as signature_invalid")

	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)

	env, err := Seal(operator, devicePub, MsgSessionInit, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// Tamper ciphertext without re-signing: the signature no longer covers
	// the bytes, so the failure must be signature_invalid, not an AEAD error.
	env.Ciphertext[0] ^= 1

	_, err = Open(device, operatorPub, env)
	if !protoerr.Is(err, protoerr.CodeSignatureInvalid) {
		t.Errorf("error = %v, want signature_invalid (verify-before-decrypt)", err)
	}
}

func TestOpen_WrongPinnedSender(t *testing.T) {
	device, devicePub := newParty(t)
	operator, _ := newParty(t)
	_, impostorPub := newParty(t)

	env, err := Seal(operator, devicePub, MsgPairRequest, []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = Open(device, impostorPub, env)
	if !protoerr.Is(err, protoerr.CodeIdentityMismatch) {
		t.Errorf("error = %v, want identity_mismatch", err)
	}
}

func TestOpen_SameIDDifferentKeyIsSignatureInvalid(t *testing.T) {
	t.Log("A pinned identity with the right id but wrong key must fail signature verification")

	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)
	_, otherPub := newParty(t)

	env, err := Seal(operator, devicePub, MsgPairRequest, []byte("hello"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	forged := operatorPub
	forged.SigningPub = otherPub.SigningPub

	_, err = Open(device, forged, env)
	if !protoerr.Is(err, protoerr.CodeSignatureInvalid) {
		t.Errorf("error = %v, want signature_invalid", err)
	}
}

func TestOpen_WrongRecipientCannotDecrypt(t *testing.T) {
	_, devicePub := newParty(t)
	operator, operatorPub := newParty(t)
	eavesdropper, _ := newParty(t)

	env, err := Seal(operator, devicePub, MsgSessionInit, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = Open(eavesdropper, operatorPub, env)
	if !protoerr.Is(err, protoerr.CodeDecryptionFailed) {
		t.Errorf("error = %v, want decryption_failed", err)
	}
}

func TestSeal_RejectsUnknownType(t *testing.T) {
	operator, _ := newParty(t)
	_, devicePub := newParty(t)
	if _, err := Seal(operator, devicePub, MsgType(99), []byte("x"), nil); err == nil {
		t.Error("sealing an unknown message type must fail")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	device, devicePub := newParty(t)
	operator, operatorPub := newParty(t)

	env, err := Seal(operator, devicePub, MsgSessionTicket, []byte("ticket bytes"), []byte("aad"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	wire, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// The decoded envelope must still open.
	got, err := Open(device, operatorPub, decoded)
	if err != nil {
		t.Fatalf("Open after decode: %v", err)
	}
	if !bytes.Equal(got, []byte("ticket bytes")) {
		t.Error("payload mismatch after wire round-trip")
	}
}

func TestDecode_RejectsMalformedFrames(t *testing.T) {
	device, devicePub := newParty(t)
	_ = device

	operator, _ := newParty(t)
	env, err := Seal(operator, devicePub, MsgData, []byte("x"), []byte("a"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	wire, _ := env.Encode()

	t.Run("Truncated", func(t *testing.T) {
		for _, n := range []int{0, 1, 10, len(wire) / 2, len(wire) - 1} {
			if _, err := Decode(wire[:n]); err == nil {
				t.Errorf("truncation to %d bytes must fail", n)
			}
		}
	})

	t.Run("TrailingBytes", func(t *testing.T) {
		if _, err := Decode(append(append([]byte(nil), wire...), 0x00)); err == nil {
			t.Error("trailing bytes must be rejected")
		}
	})
}

func TestMsgType_Known(t *testing.T) {
	for _, mt := range []MsgType{MsgPairRequest, MsgPairReceipt, MsgSessionInit, MsgSessionTicket, MsgBindingProof, MsgData} {
		if !mt.Known() {
			t.Errorf("%v must be known", mt)
		}
	}
	if MsgType(0).Known() || MsgType(7).Known() {
		t.Error("types outside the closed set must be unknown")
	}
}

func TestMarshalBody_Deterministic(t *testing.T) {
	type body struct {
		B string `cbor:"b"`
		A uint64 `cbor:"a"`
	}
	one, err := MarshalBody(body{B: "x", A: 7})
	if err != nil {
		t.Fatalf("MarshalBody: %v", err)
	}
	two, _ := MarshalBody(body{B: "x", A: 7})
	if !bytes.Equal(one, two) {
		t.Error("body encoding must be deterministic")
	}

	var decoded body
	if err := UnmarshalBody(one, &decoded); err != nil {
		t.Fatalf("UnmarshalBody: %v", err)
	}
	if decoded.A != 7 || decoded.B != "x" {
		t.Errorf("decoded body mismatch: %+v", decoded)
	}
}
