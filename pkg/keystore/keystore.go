// Package keystore provides the abstract key-store boundary for identity
// private keys, plus a file-based adapter. Platform key-storage backends
// (DPAPI, Keychain, Secret Service, Android Keystore) implement the same
// interface; the protocol core never depends on a specific backend.
package keystore

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

// KeyStore provides access to an identity's private key material.
// Implementations must be safe for concurrent use.
type KeyStore interface {
	// Load loads the identity key handle from storage.
	Load() (*identity.Keys, error)

	// Save persists an identity key handle to storage.
	Save(keys *identity.Keys) error

	// Exists returns true if key material exists in storage.
	Exists() bool

	// Path returns the storage location (for display purposes).
	Path() string
}

var (
	// ErrKeyNotFound indicates no key material exists in storage.
	ErrKeyNotFound = errors.New("identity key not found")

	// ErrInvalidPermissions indicates the key file has insecure permissions.
	// On Unix: file mode must be 0600.
	// On Windows: file must not be accessible to Everyone, Users, or
	// Authenticated Users.
	ErrInvalidPermissions = errors.New("insecure key file permissions: file accessible to other users")

	// ErrInvalidKeyFormat indicates the key file is not in the expected
	// PEM layout.
	ErrInvalidKeyFormat = errors.New("invalid key file format")
)

// PEM block types written by the file adapter.
const (
	blockIdentityID = "IDENTITY ID"
	blockSigning    = "ED25519 PRIVATE KEY"
	blockKex        = "X25519 PRIVATE KEY"
)

// FileKeyStore stores identity key material in a single PEM file with
// owner-only permissions: the identity id, the Ed25519 seed, and the
// X25519 scalar as consecutive PEM blocks.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a file-based key store at the given path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Load reads and parses the key file. Returns ErrKeyNotFound if the file
// does not exist and ErrInvalidPermissions if it is readable by others.
func (s *FileKeyStore) Load() (*identity.Keys, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s", ErrKeyNotFound, s.path)
	} else if err != nil {
		return nil, fmt.Errorf("stat key file: %w", err)
	}

	if err := checkFilePermissions(s.path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	defer cryptoutil.Zero(data)

	var id identity.ID
	var signingSeed, kexPriv []byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case blockIdentityID:
			id, err = identity.IDFromBytes(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
			}
		case blockSigning:
			signingSeed = block.Bytes
		case blockKex:
			kexPriv = block.Bytes
		default:
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKeyFormat, block.Type)
		}
	}
	defer cryptoutil.Zero(signingSeed)
	defer cryptoutil.Zero(kexPriv)

	if id.IsZero() || signingSeed == nil || kexPriv == nil {
		return nil, fmt.Errorf("%w: missing identity id, signing key, or key agreement key block", ErrInvalidKeyFormat)
	}

	keys, err := identity.FromSecrets(id, signingSeed, kexPriv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return keys, nil
}

// Save writes the key material with owner-only permissions, creating
// parent directories as needed.
func (s *FileKeyStore) Save(keys *identity.Keys) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	id := keys.ID()
	seed := keys.SigningSeed()
	kex := keys.KexSecret()
	defer cryptoutil.Zero(seed)
	defer cryptoutil.Zero(kex)

	var data []byte
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: blockIdentityID, Bytes: id[:]})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: blockSigning, Bytes: seed})...)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: blockKex, Bytes: kex})...)
	defer cryptoutil.Zero(data)

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := setFilePermissions(s.path); err != nil {
		return fmt.Errorf("set key file permissions: %w", err)
	}
	return nil
}

// Exists returns true if the key file exists.
func (s *FileKeyStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the key file path.
func (s *FileKeyStore) Path() string {
	return s.path
}
