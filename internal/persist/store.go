// Package persist implements the boundary-adjacent side of spec §3's
// "Sequenced envelope" contract and §6's "Persisted state layout": an
// append-only events table fed by internal/mux.Event, a snapshots
// table of session-graph dumps, and a sequence counter producers can
// draw from when wrapping an outbound frame as Sequenced{seq, inner}.
// The core (internal/mux, internal/dispatch, internal/registry) only
// ever writes here; nothing upstream reads its own writes back for
// behavior, matching §1's "the core neither reads nor replays these".
//
// Grounded on ehrlich-b-wingthing's internal/store/store.go: the same
// database/sql + modernc.org/sqlite + embedded migrations shape
// (WAL + foreign_keys pragmas, a schema_migrations tracking table, one
// transaction per migration file), generalized from wingthing's
// single-purpose relay store to the events/snapshots/seq_counter
// schema this daemon needs.
package persist

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fugue-mux/fugue/internal/mux"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the sqlite connection backing the events/snapshots log.
// It implements internal/mux.Sink so it can sit inside a
// internal/mux.MultiSink alongside internal/registry.Registry.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the sqlite database at dsn and
// brings its schema up to date.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Publish implements internal/mux.Sink: every Event is appended to the
// events table as it happens. Errors are logged, never returned — a
// Sink has no caller to report failure to, and a dropped audit row
// must never block the session graph it describes.
func (s *Store) Publish(ev mux.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("event marshal failed", "kind", ev.Kind, "err", err)
		return
	}
	if _, err := s.db.Exec(
		`INSERT INTO events (session_id, kind, payload) VALUES (?, ?, ?)`,
		ev.SessionID, string(ev.Kind), payload,
	); err != nil {
		s.logger.Warn("event append failed", "kind", ev.Kind, "err", err)
	}
}

// NextSeq hands out a monotonically increasing sequence number for a
// caller wrapping an outbound frame as Sequenced{seq, inner} (spec
// §3). The persistence layer is the only place a sequence counter
// lives; nothing upstream needs to track one itself.
func (s *Store) NextSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO seq_counter DEFAULT VALUES RETURNING id`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return uint64(seq), nil
}

// SaveSnapshot upserts the session-graph dump for sessionID.
func (s *Store) SaveSnapshot(sessionID string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (session_id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		sessionID, payload,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", sessionID, err)
	}
	return nil
}

// LoadSnapshot returns the last saved session-graph dump, if any.
func (s *Store) LoadSnapshot(sessionID string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM snapshots WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	return payload, true, nil
}

// DeleteSnapshot removes a session's dump once it has ended, so stale
// entries don't accumulate for sessions that will never come back.
func (s *Store) DeleteSnapshot(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	return err
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
