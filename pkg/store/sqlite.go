package store

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/binding"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/cryptoutil"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/session"
)

// Store is a SQLite-backed implementation of every storage interface in
// the protocol core. One database holds invites, pairing records,
// tickets, and fingerprint pins.
type Store struct {
	db *sql.DB
}

var (
	_ pairing.InviteStore  = (*Store)(nil)
	_ pairing.PairingStore = (*Store)(nil)
	_ session.TicketStore  = (*Store)(nil)
	_ binding.PinStore     = (*Store)(nil)
)

// DefaultPath returns the platform data path for the pairing database.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "pairctl", "pairctl.db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL lets a long-running agent validate invites committed by the
	// CLI without blocking writers.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Without a busy timeout concurrent writes immediately return
	// SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invites (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
	);
	CREATE INDEX IF NOT EXISTS idx_invites_status ON invites(status);

	CREATE TABLE IF NOT EXISTS pairings (
		device_id TEXT NOT NULL,
		operator_id TEXT NOT NULL,
		device_signing_pub BLOB NOT NULL,
		device_kex_pub BLOB NOT NULL,
		operator_signing_pub BLOB NOT NULL,
		operator_kex_pub BLOB NOT NULL,
		permissions INTEGER NOT NULL,
		unattended INTEGER NOT NULL DEFAULT 0,
		require_consent INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'paired',
		revoked_at INTEGER,
		PRIMARY KEY (device_id, operator_id)
	);

	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		operator_id TEXT NOT NULL,
		binding BLOB NOT NULL,
		issued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		permissions INTEGER NOT NULL,
		signature BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_expiry ON tickets(expires_at);

	CREATE TABLE IF NOT EXISTS pins (
		peer_id TEXT PRIMARY KEY,
		fingerprint BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ----- pairing.InviteStore -----

func (s *Store) PutInvite(ctx context.Context, inv *pairing.Invite) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (id, device_id, secret_hash, created_at, expires_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.DeviceID.String(), inv.SecretHash,
		inv.CreatedAt.Unix(), inv.ExpiresAt.Unix(), string(inv.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to store invite: %w", err)
	}
	return nil
}

func (s *Store) GetInvite(ctx context.Context, id identity.ID) (*pairing.Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, secret_hash, created_at, expires_at, status
		 FROM invites WHERE id = ?`,
		id.String(),
	)
	return scanInvite(row)
}

func (s *Store) ListInvites(ctx context.Context) ([]*pairing.Invite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, secret_hash, created_at, expires_at, status
		 FROM invites ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*pairing.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// ConsumeInvite transitions a pending, unexpired invite to consumed in
// a single UPDATE. The WHERE clause is the atomicity guarantee: under
// concurrent consumption exactly one caller sees a row change.
func (s *Store) ConsumeInvite(ctx context.Context, id identity.ID, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET status = 'consumed'
		 WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		id.String(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to consume invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check invite consumption: %w", err)
	}
	if n == 0 {
		return pairing.ErrInviteNotConsumable
	}
	return nil
}

func (s *Store) RevokeInvite(ctx context.Context, id identity.ID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET status = 'revoked' WHERE id = ?`,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pairing.ErrInviteNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvite(row rowScanner) (*pairing.Invite, error) {
	var (
		idStr, deviceStr, secretHash, status string
		createdAt, expiresAt                 int64
	)
	err := row.Scan(&idStr, &deviceStr, &secretHash, &createdAt, &expiresAt, &status)
	if err == sql.ErrNoRows {
		return nil, pairing.ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invite: %w", err)
	}

	id, err := identity.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	deviceID, err := identity.ParseID(deviceStr)
	if err != nil {
		return nil, err
	}
	return &pairing.Invite{
		ID:         id,
		DeviceID:   deviceID,
		SecretHash: secretHash,
		CreatedAt:  time.Unix(createdAt, 0).UTC(),
		ExpiresAt:  time.Unix(expiresAt, 0).UTC(),
		Status:     pairing.InviteStatus(status),
	}, nil
}

// ----- pairing.PairingStore -----

func (s *Store) PutRecord(ctx context.Context, rec *pairing.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pairings
		 (device_id, operator_id, device_signing_pub, device_kex_pub,
		  operator_signing_pub, operator_kex_pub, permissions, unattended,
		  require_consent, created_at, status, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeviceID.String(), rec.OperatorID.String(),
		[]byte(rec.Device.SigningPub), rec.Device.KexPub,
		[]byte(rec.Operator.SigningPub), rec.Operator.KexPub,
		uint32(rec.Permissions), boolToInt(rec.UnattendedEnabled),
		boolToInt(rec.RequireConsentEachTime), rec.CreatedAt.Unix(),
		string(rec.Status), unixOrNil(rec.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store pairing record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, deviceID, operatorID identity.ID) (*pairing.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT device_id, operator_id, device_signing_pub, device_kex_pub,
		        operator_signing_pub, operator_kex_pub, permissions, unattended,
		        require_consent, created_at, status, revoked_at
		 FROM pairings WHERE device_id = ? AND operator_id = ?`,
		deviceID.String(), operatorID.String(),
	)
	return scanRecord(row)
}

func (s *Store) ListRecords(ctx context.Context) ([]*pairing.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, operator_id, device_signing_pub, device_kex_pub,
		        operator_signing_pub, operator_kex_pub, permissions, unattended,
		        require_consent, created_at, status, revoked_at
		 FROM pairings ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairing records: %w", err)
	}
	defer rows.Close()

	var records []*pairing.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) RevokeRecord(ctx context.Context, deviceID, operatorID identity.ID, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pairings SET status = 'revoked', revoked_at = ?
		 WHERE device_id = ? AND operator_id = ? AND status = 'paired'`,
		now.Unix(), deviceID.String(), operatorID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke pairing record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing record from one already revoked.
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM pairings WHERE device_id = ? AND operator_id = ?`,
			deviceID.String(), operatorID.String(),
		).Scan(&one)
		if err == sql.ErrNoRows {
			return pairing.ErrRecordNotFound
		}
		return err
	}
	return nil
}

func scanRecord(row rowScanner) (*pairing.Record, error) {
	var (
		deviceStr, operatorStr, status string
		devSign, devKex, opSign, opKex []byte
		permissions                    uint32
		unattended, requireConsent     int
		createdAt                      int64
		revokedAt                      sql.NullInt64
	)
	err := row.Scan(&deviceStr, &operatorStr, &devSign, &devKex, &opSign, &opKex,
		&permissions, &unattended, &requireConsent, &createdAt, &status, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, pairing.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pairing record: %w", err)
	}

	deviceID, err := identity.ParseID(deviceStr)
	if err != nil {
		return nil, err
	}
	operatorID, err := identity.ParseID(operatorStr)
	if err != nil {
		return nil, err
	}

	rec := &pairing.Record{
		DeviceID:   deviceID,
		OperatorID: operatorID,
		Device: identity.Identity{
			ID:         deviceID,
			SigningPub: ed25519.PublicKey(devSign),
			KexPub:     devKex,
		},
		Operator: identity.Identity{
			ID:         operatorID,
			SigningPub: ed25519.PublicKey(opSign),
			KexPub:     opKex,
		},
		Permissions:            policy.Permissions(permissions),
		UnattendedEnabled:      unattended != 0,
		RequireConsentEachTime: requireConsent != 0,
		CreatedAt:              time.Unix(createdAt, 0).UTC(),
		Status:                 pairing.RecordStatus(status),
	}
	if revokedAt.Valid {
		rec.RevokedAt = time.Unix(revokedAt.Int64, 0).UTC()
	}
	return rec, nil
}

// ----- session.TicketStore -----

func (s *Store) PutTicket(ctx context.Context, t *session.Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, device_id, operator_id, binding, issued_at, expires_at, permissions, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.DeviceID.String(), t.OperatorID.String(), t.Binding[:],
		t.IssuedAt.Unix(), t.ExpiresAt.Unix(), uint32(t.Permissions), t.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to store ticket: %w", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id identity.ID) (*session.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, operator_id, binding, issued_at, expires_at, permissions, signature
		 FROM tickets WHERE id = ?`,
		id.String(),
	)
	return scanTicket(row)
}

func (s *Store) ListTickets(ctx context.Context) ([]*session.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, operator_id, binding, issued_at, expires_at, permissions, signature
		 FROM tickets ORDER BY issued_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*session.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE expires_at <= ?`,
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tickets: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanTicket(row rowScanner) (*session.Ticket, error) {
	var (
		idStr, deviceStr, operatorStr string
		bindingBytes, signature       []byte
		issuedAt, expiresAt           int64
		permissions                   uint32
	)
	err := row.Scan(&idStr, &deviceStr, &operatorStr, &bindingBytes, &issuedAt, &expiresAt, &permissions, &signature)
	if err == sql.ErrNoRows {
		return nil, session.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}

	id, err := identity.ParseID(idStr)
	if err != nil {
		return nil, err
	}
	deviceID, err := identity.ParseID(deviceStr)
	if err != nil {
		return nil, err
	}
	operatorID, err := identity.ParseID(operatorStr)
	if err != nil {
		return nil, err
	}
	if len(bindingBytes) != session.BindingSize {
		return nil, fmt.Errorf("stored binding must be %d bytes, got %d", session.BindingSize, len(bindingBytes))
	}
	if len(signature) != cryptoutil.SignatureSize {
		return nil, fmt.Errorf("stored signature must be %d bytes, got %d", cryptoutil.SignatureSize, len(signature))
	}

	t := &session.Ticket{
		ID:          id,
		DeviceID:    deviceID,
		OperatorID:  operatorID,
		IssuedAt:    time.Unix(issuedAt, 0).UTC(),
		ExpiresAt:   time.Unix(expiresAt, 0).UTC(),
		Permissions: policy.Permissions(permissions),
		Signature:   signature,
	}
	copy(t.Binding[:], bindingBytes)
	return t, nil
}

// ----- binding.PinStore -----

func (s *Store) GetPin(ctx context.Context, peerID identity.ID) ([binding.FingerprintSize]byte, bool, error) {
	var fp [binding.FingerprintSize]byte
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM pins WHERE peer_id = ?`,
		peerID.String(),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return fp, false, nil
	}
	if err != nil {
		return fp, false, fmt.Errorf("failed to load pin: %w", err)
	}
	if len(raw) != binding.FingerprintSize {
		return fp, false, fmt.Errorf("stored fingerprint must be %d bytes, got %d", binding.FingerprintSize, len(raw))
	}
	copy(fp[:], raw)
	return fp, true, nil
}

func (s *Store) PutPin(ctx context.Context, peerID identity.ID, fp [binding.FingerprintSize]byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pins (peer_id, fingerprint, updated_at) VALUES (?, ?, ?)`,
		peerID.String(), fp[:], time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store pin: %w", err)
	}
	return nil
}

func (s *Store) DeletePin(ctx context.Context, peerID identity.ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pins WHERE peer_id = ?`,
		peerID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
