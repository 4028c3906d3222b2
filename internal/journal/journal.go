// Package journal keeps an append-only SQLite audit trail of meeting
// lifecycle events. Nothing is ever read back into live state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Event string

const (
	MeetingCreated    Event = "meeting_created"
	ParticipantJoined Event = "participant_joined"
	ParticipantLeft   Event = "participant_left"
	HostChanged       Event = "host_changed"
	MeetingEnded      Event = "meeting_ended"
)

type Entry struct {
	ID       string             `json:"id"`
	At       time.Time          `json:"at"`
	Event    Event              `json:"event"`
	Session  domain.SessionCode `json:"session"`
	Peer     domain.PeerID      `json:"peer,omitempty"`
	Username string             `json:"username,omitempty"`
}

// Journal is safe for concurrent use. A nil *Journal records nothing.
type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal at dsn, a modernc sqlite
// data source such as "file:meetrelay.db" or ":memory:". Writes share one
// connection, so callers queue in the pool instead of failing with
// SQLITE_BUSY.
func Open(dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// withPragmas adds busy_timeout, and WAL for file databases, unless the
// dsn already sets them.
func withPragmas(dsn string) string {
	var add []string
	if !strings.Contains(dsn, "busy_timeout") {
		add = append(add, "_pragma=busy_timeout(5000)")
	}
	inMemory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !inMemory && !strings.Contains(dsn, "journal_mode") {
		add = append(add, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		at_ns INTEGER NOT NULL,
		event TEXT NOT NULL,
		session TEXT NOT NULL,
		peer TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS events_session ON events(session)`)
	return err
}

// Record appends e, filling in ID and At when unset.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(id, at_ns, event, session, peer, username) VALUES(?,?,?,?,?,?)`,
		e.ID, e.At.UnixNano(), string(e.Event), string(e.Session), string(e.Peer), e.Username)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Event, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-empty session
// restricts the result to that meeting.
func (j *Journal) Recent(ctx context.Context, session domain.SessionCode, limit int) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, at_ns, event, session, peer, username FROM events`
	args := []any{}
	if session != "" {
		q += ` WHERE session = ?`
		args = append(args, string(session))
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			atNS int64
			ev   string
			code string
			peer string
		)
		if err := rows.Scan(&e.ID, &atNS, &ev, &code, &peer, &e.Username); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.At = time.Unix(0, atNS)
		e.Event = Event(ev)
		e.Session = domain.SessionCode(code)
		e.Peer = domain.PeerID(peer)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
