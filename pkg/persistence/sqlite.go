package persistence

import (
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/tieredvm/recompiler/pkg/ctlerrors"
)

// SQLiteStore is the default cross-run, single-machine shared-cache
// backend (SPEC_FULL §11's domain-stack table): a local file plays the
// SCC role, matching the common single-process-per-machine deployment.
// Grounded on the teacher's pkg/database sqlite backend's table/
// prepared-statement shape.
type SQLiteStore struct {
	db   *sql.DB
	full atomic.Bool

	mu     sync.Mutex
	insert *sql.Stmt
	selectStmt *sql.Stmt
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed blob store
// at path, with the fixed one-table schema the controller's blob shape
// needs: key, blob.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ip_blobs (
		rom_key TEXT PRIMARY KEY,
		blob BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.Prepare(`INSERT INTO ip_blobs(rom_key, blob) VALUES (?, ?)
		ON CONFLICT(rom_key) DO UPDATE SET blob = excluded.blob`)
	if err != nil {
		db.Close()
		return nil, err
	}
	selectStmt, err := db.Prepare(`SELECT blob FROM ip_blobs WHERE rom_key = ?`)
	if err != nil {
		insert.Close()
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, insert: insert, selectStmt: selectStmt}, nil
}

func (s *SQLiteStore) Load(key string) ([]byte, bool, ctlerrors.ReasonCode) {
	var blob []byte
	err := s.selectStmt.QueryRow(key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ctlerrors.ReasonOK
	}
	if err != nil {
		return nil, false, ctlerrors.ReasonPortLayerFailure
	}
	return blob, true, ctlerrors.ReasonOK
}

func (s *SQLiteStore) Store(key string, blob []byte) ctlerrors.ReasonCode {
	if s.full.Load() {
		return ctlerrors.ReasonSCCFull
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.insert.Exec(key, blob); err != nil {
		// SQLITE_FULL and disk-full surface as generic errors from the
		// database/sql layer; treat any write failure here as the SCC
		// going sticky-full, matching spec §7's "Successive persistence
		// attempts short-circuit" for the disk-backed case.
		s.full.Store(true)
		return ctlerrors.ReasonSCCFull
	}
	return ctlerrors.ReasonOK
}

func (s *SQLiteStore) IsFull() bool { return s.full.Load() }

func (s *SQLiteStore) Close() error {
	s.insert.Close()
	s.selectStmt.Close()
	return s.db.Close()
}
