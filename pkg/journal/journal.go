package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Link events recorded by the peer runtime.
const (
	EventDirect       = "direct"
	EventRelayAdd     = "relay-add"
	EventRelayRemoved = "relay-removed"
	EventDisconnect   = "disconnect"
)

// Entry is one recorded link event.
type Entry struct {
	Event  string
	Peer   string
	Detail string
	Time   time.Time
}

// Journal persists link events to a local SQLite file. A nil *Journal
// discards everything, so callers never need to check.
type Journal struct {
	db *sql.DB
}

// Open creates (or reuses) the database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS link_events(event TEXT, peer TEXT, detail TEXT, ts INTEGER); CREATE INDEX IF NOT EXISTS idx_link_events_peer ON link_events(peer);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends an event; failures are logged, never returned.
func (j *Journal) Record(event, peer, detail string) {
	if j == nil || j.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, `INSERT INTO link_events(event, peer, detail, ts) VALUES(?,?,?,?)`, event, peer, detail, time.Now().UnixNano()); err != nil {
		log.Printf("journal record %s/%s failed: %v", event, peer, err)
	}
}

// List returns the most recent events for peer (all peers when empty), oldest first.
func (j *Journal) List(peer string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q := `SELECT event, peer, detail, ts FROM link_events WHERE (? = '' OR peer = ?) ORDER BY ts DESC, rowid DESC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, q, peer, peer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Event, &e.Peer, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
