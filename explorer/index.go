package explorer

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"nftbank/core/events"
	"nftbank/core/types"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("explorer: index path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    type       TEXT NOT NULL,
    attributes TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_type_idx ON events(type, seq);
`

// StoredEvent is one indexed event as served to off-chain observers.
type StoredEvent struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

// Index persists every emitted event into sqlite so observers can replay
// deposits, withdrawals, and mints without holding a live subscription. It
// satisfies events.Emitter and is safe to chain behind the engines.
type Index struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open initialises the index at the supplied sqlite DSN. Use ":memory:" for
// ephemeral runs.
func Open(path string, log *slog.Logger) (*Index, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Index{db: db, log: log, now: time.Now}, nil
}

// Close releases database resources.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// SetClock overrides the time source, primarily for deterministic testing.
func (ix *Index) SetClock(now func() time.Time) {
	if ix == nil || now == nil {
		return
	}
	ix.now = now
}

type attributed interface {
	Event() *types.Event
}

// Emit implements events.Emitter. Emission must never fail the enclosing
// state transition, so storage errors are logged and swallowed.
func (ix *Index) Emit(ev events.Event) {
	if ix == nil || ev == nil {
		return
	}
	record := &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
	if a, ok := ev.(attributed); ok {
		if full := a.Event(); full != nil {
			record = full
		}
	}
	encoded, err := json.Marshal(record.Attributes)
	if err != nil {
		ix.log.Error("explorer: encode event attributes", "type", record.Type, "err", err)
		return
	}
	_, err = ix.db.Exec(
		`INSERT INTO events (id, type, attributes, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), record.Type, string(encoded), ix.now().Unix(),
	)
	if err != nil {
		ix.log.Error("explorer: persist event", "type", record.Type, "err", err)
	}
}

// ListEvents returns up to limit events in descending sequence order,
// optionally filtered by type and by an address appearing in the attributes.
func (ix *Index) ListEvents(eventType, account string, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT seq, id, type, attributes, created_at FROM events`
	var (
		clauses []string
		args    []interface{}
	)
	if trimmed := strings.TrimSpace(eventType); trimmed != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, trimmed)
	}
	if trimmed := strings.TrimSpace(account); trimmed != "" {
		clauses = append(clauses, "attributes LIKE ?")
		args = append(args, "%"+trimmed+"%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev    StoredEvent
			attrs string
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Type, &attrs, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &ev.Attributes); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
