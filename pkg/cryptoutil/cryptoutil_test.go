package cryptoutil

import (
	"bytes"
	"testing"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}

	msg := []byte("canonical transcript hash")
	sig := Sign(priv, msg)

	if !Verify(pub, msg, sig) {
		t.Error("valid signature must verify")
	}
	if Verify(pub, []byte("different message"), sig) {
		t.Error("signature over a different message must not verify")
	}

	// Flip one signature byte.
	sig[0] ^= 0x01
	if Verify(pub, msg, sig) {
		t.Error("tampered signature must not verify")
	}
}

func TestVerify_MalformedInputsDoNotPanic(t *testing.T) {
	pub, priv, _ := GenerateSigningKey()
	sig := Sign(priv, []byte("m"))

	if Verify(pub[:16], []byte("m"), sig) {
		t.Error("truncated public key must not verify")
	}
	if Verify(pub, []byte("m"), sig[:32]) {
		t.Error("truncated signature must not verify")
	}
	if Verify(nil, []byte("m"), nil) {
		t.Error("nil inputs must not verify")
	}
}

func TestDH_SharedSecretAgreement(t *testing.T) {
	t.Log("Both sides of an X25519 exchange derive the same secret")

	pubA, privA, err := GenerateKexKey()
	if err != nil {
		t.Fatalf("GenerateKexKey: %v", err)
	}
	defer Zero(privA)
	pubB, privB, err := GenerateKexKey()
	if err != nil {
		t.Fatalf("GenerateKexKey: %v", err)
	}
	defer Zero(privB)

	sharedA, err := DH(privA, pubB)
	if err != nil {
		t.Fatalf("DH A: %v", err)
	}
	defer Zero(sharedA)
	sharedB, err := DH(privB, pubA)
	if err != nil {
		t.Fatalf("DH B: %v", err)
	}
	defer Zero(sharedB)

	if !bytes.Equal(sharedA, sharedB) {
		t.Error("shared secrets must agree")
	}
}

func TestDH_RejectsLowOrderPeerKey(t *testing.T) {
	_, priv, _ := GenerateKexKey()
	defer Zero(priv)

	lowOrder := make([]byte, X25519Size) // all-zero point
	if _, err := DH(priv, lowOrder); err == nil {
		t.Error("low-order peer key must be rejected")
	}
}

func TestHKDF_DeterministicAndDomainSeparated(t *testing.T) {
	secret := []byte("shared secret material")
	salt := []byte("transcript hash")

	k1, err := HKDF(secret, salt, []byte("context/a"), KeySize)
	if err != nil {
		t.Fatalf("HKDF: %v", err)
	}
	k2, _ := HKDF(secret, salt, []byte("context/a"), KeySize)
	k3, _ := HKDF(secret, salt, []byte("context/b"), KeySize)

	if !bytes.Equal(k1, k2) {
		t.Error("HKDF must be deterministic")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different info strings must yield different keys")
	}
	if len(k1) != KeySize {
		t.Errorf("derived key length = %d, want %d", len(k1), KeySize)
	}
}

func TestAEAD_RoundTripAndTamperRejection(t *testing.T) {
	key, err := RandomBytes(KeySize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	defer Zero(key)
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce: %v", err)
	}
	aad := []byte("header bytes")
	plaintext := []byte("control channel payload")

	ct, err := AEADSeal(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("AEADSeal: %v", err)
	}

	t.Run("RoundTrip", func(t *testing.T) {
		pt, err := AEADOpen(key, nonce, aad, ct)
		if err != nil {
			t.Fatalf("AEADOpen: %v", err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Error("round-trip plaintext mismatch")
		}
	})

	t.Run("CiphertextTamper", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[0] ^= 0x01
		if _, err := AEADOpen(key, nonce, aad, bad); err == nil {
			t.Error("tampered ciphertext must fail to open")
		}
	})

	t.Run("AADTamper", func(t *testing.T) {
		if _, err := AEADOpen(key, nonce, []byte("other header"), ct); err == nil {
			t.Error("mismatched aad must fail to open")
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other, _ := RandomBytes(KeySize)
		defer Zero(other)
		if _, err := AEADOpen(other, nonce, aad, ct); err == nil {
			t.Error("wrong key must fail to open")
		}
	})
}

func TestMAC(t *testing.T) {
	key := []byte("invite secret")
	msg := []byte("requester fields transcript")

	tag := MAC(key, msg)
	if len(tag) != MACSize {
		t.Errorf("tag length = %d, want %d", len(tag), MACSize)
	}
	if !VerifyMAC(key, msg, tag) {
		t.Error("valid tag must verify")
	}
	if VerifyMAC(key, []byte("other"), tag) {
		t.Error("tag over a different message must not verify")
	}
	if VerifyMAC([]byte("other key"), msg, tag) {
		t.Error("tag under a different key must not verify")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not scrubbed: %d", i, v)
		}
	}
}
