// Package cryptoutil wraps the cryptographic primitives used by the
// pairing and session protocol: Ed25519 signing, X25519 key agreement,
// HKDF-SHA256, ChaCha20-Poly1305 AEAD, and HMAC-SHA256.
//
// This is the only package that handles raw secret key material. Other
// packages operate on public material and opaque key handles
// (identity.Keys). Secret-bearing intermediates are scrubbed immediately
// after last use, including on error paths.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AEAD and HMAC key size in bytes.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the AEAD nonce size in bytes.
	NonceSize = chacha20poly1305.NonceSize

	// X25519Size is the size of X25519 public keys, private scalars,
	// and shared secrets in bytes.
	X25519Size = curve25519.ScalarSize

	// SignatureSize is the Ed25519 signature size in bytes.
	SignatureSize = ed25519.SignatureSize

	// MACSize is the HMAC-SHA256 tag size in bytes.
	MACSize = sha256.Size
)

// Sign signs msg with an Ed25519 private key.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
// Malformed keys or signatures verify as false, never panic.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// GenerateSigningKey generates an Ed25519 key pair from crypto/rand.
func GenerateSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate signing key: %w", err)
	}
	return pub, priv, nil
}

// GenerateKexKey generates an X25519 key pair from crypto/rand.
// The private scalar is returned to the caller, who owns its lifetime
// and must Zero it when done.
func GenerateKexKey() (pub, priv []byte, err error) {
	priv = make([]byte, X25519Size)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("generate key agreement key: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		Zero(priv)
		return nil, nil, fmt.Errorf("derive key agreement public key: %w", err)
	}
	return pub, priv, nil
}

// DH computes the X25519 shared secret between a private scalar and a
// peer public key. The caller owns the returned secret and must Zero it
// after deriving keys from it. Low-order peer keys are rejected.
func DH(priv, peerPub []byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	return shared, nil
}

// HKDF derives length bytes from secret using HKDF-SHA256.
// The secret is not scrubbed here; the caller owns its lifetime.
func HKDF(secret, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		Zero(out)
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return out, nil
}

// AEADSeal encrypts and authenticates plaintext with ChaCha20-Poly1305.
func AEADSeal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// AEADOpen authenticates and decrypts ciphertext with ChaCha20-Poly1305.
// Authentication failure returns an error and no plaintext.
func AEADOpen(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("aead open failed: %w", err)
	}
	return plaintext, nil
}

// MAC computes HMAC-SHA256 over msg.
func MAC(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

// VerifyMAC reports whether tag is the HMAC-SHA256 of msg under key.
// The comparison is constant-time.
func VerifyMAC(key, msg, tag []byte) bool {
	return hmac.Equal(MAC(key, msg), tag)
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// RandomNonce returns a fresh AEAD nonce.
func RandomNonce() ([]byte, error) {
	return RandomBytes(NonceSize)
}

// Zero scrubs a secret-bearing buffer in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
