// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package opstate persists the operational state of connected devices in
// SQLite.
//
// The state kept per device is the capability list negotiated on its last
// successful connect. The list is stored as one deterministic CBOR value so
// that unchanged capabilities produce identical rows.
package opstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	southbound "github.com/netascode/go-gnmi-southbound"
	"github.com/netascode/go-gnmi-southbound/capability"
)

const (
	dirPermissions = 0750
	msPerSecond    = 1000
	pingTimeout    = 5 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS device_capabilities (
	device_id    TEXT PRIMARY KEY,
	capabilities BLOB NOT NULL,
	updated_at   INTEGER NOT NULL
)`

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("opstate: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("opstate: CBOR decoder initialization failed: " + err.Error())
	}
}

// capabilityRecord is the stored form of one capability.
type capabilityRecord struct {
	Name         string `cbor:"1,keyasint"`
	Organization string `cbor:"2,keyasint,omitempty"`
	Version      string `cbor:"3,keyasint,omitempty"`
}

// Config configures the database.
type Config struct {
	// Path of the database file. The directory is created when missing.
	// ":memory:" keeps the database in memory.
	Path string
	// WALMode enables write-ahead logging.
	WALMode bool
	// BusyTimeout is how long to wait for a database lock.
	BusyTimeout time.Duration
}

// Store is a southbound.OperationalStore backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ southbound.OperationalStore = (*Store)(nil)

// Open opens or creates the database and its table.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("opstate: database path cannot be empty")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("opstate: creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opstate: opening database: %w", err)
	}
	// one connection, so that ":memory:" is a single database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("opstate: verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("opstate: creating schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("opstate: closing database: %w", err)
	}
	return nil
}

// PutCapabilities replaces the stored capabilities of deviceID.
func (s *Store) PutCapabilities(ctx context.Context, deviceID string, caps []capability.DeviceCapability) error {
	recs := make([]capabilityRecord, len(caps))
	for i, c := range caps {
		recs[i] = capabilityRecord(c)
	}
	blob, err := encMode.Marshal(recs)
	if err != nil {
		return fmt.Errorf("opstate: encoding capabilities of %s: %w", deviceID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_capabilities (device_id, capabilities, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			capabilities = excluded.capabilities,
			updated_at = excluded.updated_at`,
		deviceID, blob, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("opstate: storing capabilities of %s: %w", deviceID, err)
	}
	return nil
}

// Capabilities returns the stored capabilities of deviceID. ok is false
// when the device has none.
func (s *Store) Capabilities(ctx context.Context, deviceID string) ([]capability.DeviceCapability, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT capabilities FROM device_capabilities WHERE device_id = ?`, deviceID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opstate: reading capabilities of %s: %w", deviceID, err)
	}
	caps, err := decodeCapabilities(blob)
	if err != nil {
		return nil, false, fmt.Errorf("opstate: decoding capabilities of %s: %w", deviceID, err)
	}
	return caps, true, nil
}

// UpdatedAt returns when the capabilities of deviceID were last stored.
func (s *Store) UpdatedAt(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM device_capabilities WHERE device_id = ?`, deviceID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("opstate: reading %s: %w", deviceID, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Devices lists the devices with stored capabilities in ID order.
func (s *Store) Devices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_id FROM device_capabilities ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("opstate: listing devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("opstate: listing devices: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Forget removes the stored state of deviceID.
func (s *Store) Forget(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM device_capabilities WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("opstate: removing %s: %w", deviceID, err)
	}
	return nil
}

func decodeCapabilities(blob []byte) ([]capability.DeviceCapability, error) {
	var recs []capabilityRecord
	if err := decMode.Unmarshal(blob, &recs); err != nil {
		return nil, err
	}
	caps := make([]capability.DeviceCapability, len(recs))
	for i, r := range recs {
		caps[i] = capability.DeviceCapability(r)
	}
	return caps, nil
}
