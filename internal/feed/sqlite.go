package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mvmcode/elves-sub000/internal/game"
)

// Schema is the session database layout written by the desktop host.
// LoadSession only reads it; tests use it to build fixtures.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	task TEXT,
	status TEXT
);
CREATE TABLE IF NOT EXISTS elves (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	name TEXT NOT NULL,
	role TEXT,
	color TEXT,
	status TEXT
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	elf_id TEXT,
	event_type TEXT NOT NULL,
	payload TEXT,
	funny_status TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);
`

// ErrNoSession is returned when the database has no sessions.
var ErrNoSession = errors.New("no sessions recorded")

const sessionEventsQuery = `
SELECT e.id, COALESCE(e.elf_id, ''), COALESCE(el.name, ''), COALESCE(el.color, ''),
       e.event_type, COALESCE(e.payload, ''), COALESCE(e.funny_status, ''), e.timestamp
FROM events e
LEFT JOIN elves el ON el.id = e.elf_id
WHERE e.session_id = ?
ORDER BY e.timestamp, e.id`

// OpenDB opens a session database and checks that it is reachable.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// LatestSession returns the id of the most recently started session.
func LatestSession(ctx context.Context, db *sql.DB) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// LoadSession reads every event of a session in timestamp order. The
// row's funny_status becomes payload.funnyStatus and an elf's colour
// becomes the hat colour of its spawn. Rows that fail validation are
// skipped.
func LoadSession(ctx context.Context, db *sql.DB, sessionID string, d *Decoder) ([]game.Event, error) {
	rows, err := db.QueryContext(ctx, sessionEventsQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []game.Event
	for rows.Next() {
		var (
			rowID                                        int64
			elfID, name, color, kind, payload, funnyText string
			ts                                           int64
		)
		if err := rows.Scan(&rowID, &elfID, &name, &color, &kind, &payload, &funnyText, &ts); err != nil {
			return out, fmt.Errorf("session %s: %w", sessionID, err)
		}

		body := map[string]any{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				d.metrics.Rejected.WithLabelValues("payload").Inc()
				continue
			}
		}
		if body == nil {
			body = map[string]any{}
		}
		if funnyText != "" {
			body["funnyStatus"] = funnyText
		}
		if k, _ := game.ParseEventKind(kind); k == game.EventSpawn && color != "" {
			if _, ok := body["hatColor"]; !ok {
				body["hatColor"] = color
			}
		}

		rec := map[string]any{
			"id":        fmt.Sprintf("%s-%d", sessionID, rowID),
			"timestamp": ts,
			"agentId":   elfID,
			"kind":      kind,
			"payload":   body,
		}
		if name != "" {
			rec["agentName"] = name
		}
		ev, err := d.DecodeValue(rec)
		if err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return out, nil
}
