// Package identity defines long-term protocol identities: a stable
// 16-byte identifier pinned to an Ed25519 signing key and an X25519
// key-agreement key. Identities are immutable once generated; rotation
// creates a new identity and revokes the old one.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
)

// IDSize is the wire size of an identity identifier in bytes.
const IDSize = 16

// ID is a stable public identifier for a device or operator.
type ID [IDSize]byte

// NewID generates a random identifier.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses an identifier from its canonical UUID string form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse identity id: %w", err)
	}
	return ID(u), nil
}

// IDFromBytes copies an identifier from a 16-byte slice.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) != IDSize {
		return ID{}, fmt.Errorf("identity id must be %d bytes, got %d", IDSize, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// String renders the identifier in canonical UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the identifier is all zero.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Identity is the public half of a long-term identity: the pinned
// signing key and key-agreement key for a device or operator.
type Identity struct {
	ID         ID
	SigningPub ed25519.PublicKey
	KexPub     []byte // 32-byte X25519 public key
}

// Equal reports whether two identities pin the same identifier and keys.
func (i Identity) Equal(other Identity) bool {
	return i.ID == other.ID &&
		bytes.Equal(i.SigningPub, other.SigningPub) &&
		bytes.Equal(i.KexPub, other.KexPub)
}

// Validate checks key lengths. An identity with malformed keys is never
// accepted for pinning.
func (i Identity) Validate() error {
	if i.ID.IsZero() {
		return fmt.Errorf("identity id is zero")
	}
	if len(i.SigningPub) != ed25519.PublicKeySize {
		return fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PublicKeySize, len(i.SigningPub))
	}
	if len(i.KexPub) != cryptoutil.X25519Size {
		return fmt.Errorf("key agreement key must be %d bytes, got %d", cryptoutil.X25519Size, len(i.KexPub))
	}
	return nil
}

// Fingerprint computes the SHA-256 fingerprint of a public key as a
// lowercase hex string. The same key always produces the same fingerprint.
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// Keys is the private handle for an identity. It is the only object that
// carries secret key material outside pkg/cryptoutil; other packages pass
// it around opaquely and never read the key fields.
type Keys struct {
	id          ID
	signingPriv ed25519.PrivateKey
	kexPriv     []byte
}

// Generate creates a fresh identity with new signing and key-agreement keys.
func Generate() (*Keys, error) {
	_, signingPriv, err := cryptoutil.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	_, kexPriv, err := cryptoutil.GenerateKexKey()
	if err != nil {
		return nil, err
	}
	return &Keys{id: NewID(), signingPriv: signingPriv, kexPriv: kexPriv}, nil
}

// FromSecrets reconstructs a key handle from stored secret material.
// Used by keystore adapters; callers must not retain the input slices.
func FromSecrets(id ID, signingSeed, kexPriv []byte) (*Keys, error) {
	if len(signingSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(signingSeed))
	}
	if len(kexPriv) != cryptoutil.X25519Size {
		return nil, fmt.Errorf("key agreement scalar must be %d bytes, got %d", cryptoutil.X25519Size, len(kexPriv))
	}
	k := &Keys{
		id:          id,
		signingPriv: ed25519.NewKeyFromSeed(signingSeed),
		kexPriv:     append([]byte(nil), kexPriv...),
	}
	return k, nil
}

// ID returns the identity's stable identifier.
func (k *Keys) ID() ID {
	return k.id
}

// Public returns the public identity for pinning and distribution.
func (k *Keys) Public() (Identity, error) {
	kexPub, err := cryptoutil.DH(k.kexPriv, basepoint())
	if err != nil {
		return Identity{}, fmt.Errorf("derive key agreement public key: %w", err)
	}
	return Identity{
		ID:         k.id,
		SigningPub: k.signingPriv.Public().(ed25519.PublicKey),
		KexPub:     kexPub,
	}, nil
}

// Sign signs msg with the identity's Ed25519 key.
func (k *Keys) Sign(msg []byte) []byte {
	return cryptoutil.Sign(k.signingPriv, msg)
}

// DH computes the X25519 shared secret with a peer public key.
// The caller owns the returned secret and must scrub it after use.
func (k *Keys) DH(peerPub []byte) ([]byte, error) {
	return cryptoutil.DH(k.kexPriv, peerPub)
}

// SigningSeed returns a copy of the Ed25519 seed for keystore persistence.
// The caller must scrub the copy after writing it.
func (k *Keys) SigningSeed() []byte {
	return append([]byte(nil), k.signingPriv.Seed()...)
}

// KexSecret returns a copy of the X25519 scalar for keystore persistence.
// The caller must scrub the copy after writing it.
func (k *Keys) KexSecret() []byte {
	return append([]byte(nil), k.kexPriv...)
}

// Destroy scrubs the secret material. The handle is unusable afterwards.
func (k *Keys) Destroy() {
	cryptoutil.Zero(k.signingPriv)
	cryptoutil.Zero(k.kexPriv)
}

func basepoint() []byte {
	// curve25519.Basepoint, spelled locally to keep the import surface of
	// this package limited to cryptoutil.
	bp := make([]byte, cryptoutil.X25519Size)
	bp[0] = 9
	return bp
}
