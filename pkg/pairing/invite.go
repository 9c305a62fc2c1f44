package pairing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

// SecretSize is the number of bytes in a generated invite secret (256 bits).
const SecretSize = 32

// DefaultInviteTTL is the time window during which an invite is valid.
// After this period the invite expires and a new one must be issued.
const DefaultInviteTTL = 1 * time.Hour

// InviteStatus is the invite lifecycle state as persisted.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteConsumed InviteStatus = "consumed"
	InviteRevoked  InviteStatus = "revoked"
)

// Invite is a single-use pairing offer issued by a device. The plaintext
// secret is returned exactly once at creation; only its SHA-256 hash is
// stored.
type Invite struct {
	ID         identity.ID
	DeviceID   identity.ID
	SecretHash string // lowercase hex SHA-256 of the secret
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     InviteStatus
}

// NewInvite generates an invite with a fresh 32-byte secret. The secret
// is returned to the caller for out-of-band delivery and is not
// retained; the invite stores only its hash.
func NewInvite(deviceID identity.ID, ttl time.Duration, now time.Time) (*Invite, []byte, error) {
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	secret, err := cryptoutil.RandomBytes(SecretSize)
	if err != nil {
		return nil, nil, err
	}
	inv := &Invite{
		ID:         identity.NewID(),
		DeviceID:   deviceID,
		SecretHash: HashSecret(secret),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Status:     InvitePending,
	}
	return inv, secret, nil
}

// HashSecret computes the stored form of an invite secret: lowercase hex
// SHA-256. Never store the plaintext secret.
func HashSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// MatchesSecret compares a presented secret against the stored hash in
// constant time.
func (i *Invite) MatchesSecret(secret []byte) bool {
	computed := []byte(HashSecret(secret))
	stored := []byte(i.SecretHash)
	return subtle.ConstantTimeCompare(computed, stored) == 1
}

// Expired reports whether the invite's TTL has passed. Pass time.Now()
// at the callsite to keep check and use on the same clock reading.
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EncodeSecret renders a secret for out-of-band display as unpadded
// base64url.
func EncodeSecret(secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(secret)
}

// DecodeSecret parses a secret from its display form.
func DecodeSecret(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
