package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// RawEvent is one indexed telemetry record as returned by queries: the
// common envelope fields plus the original event payload.
type RawEvent struct {
	EventType   ucp.EventType   `json:"event_type"`
	EventID     string          `json:"event_id"`
	SessionID   string          `json:"session_id"`
	RequestID   string          `json:"request_id"`
	TraceID     string          `json:"trace_id"`
	TimestampMs int64           `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
}

// queryStore is the sqlite-indexed event store backing Store's query
// interface, satisfying spec.md §2's "indexed query" requirement
// alongside the JSONL append log.
type queryStore struct {
	db *sql.DB
}

func newQueryStore(path string) (*queryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry query store: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS telemetry_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	session_id TEXT NOT NULL,
	request_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	payload_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_session ON telemetry_events(session_id);
CREATE INDEX IF NOT EXISTS idx_telemetry_timestamp ON telemetry_events(timestamp_ms);
`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating telemetry query store: %w", err)
	}
	return &queryStore{db: db}, nil
}

func (s *queryStore) Close() error {
	return s.db.Close()
}

func (s *queryStore) insert(ctx context.Context, eventType ucp.EventType, eventID, sessionID, requestID, traceID string, tsMs int64, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telemetry payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO telemetry_events (event_id, event_type, session_id, request_id, trace_id, timestamp_ms, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING
`, eventID, string(eventType), sessionID, requestID, traceID, tsMs, b)
	if err != nil {
		return fmt.Errorf("inserting telemetry event %s: %w", eventID, err)
	}
	return nil
}

// QueryBySession returns every event recorded for sessionID, oldest first.
func (s *queryStore) QueryBySession(ctx context.Context, sessionID string) ([]RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_type, event_id, session_id, request_id, trace_id, timestamp_ms, payload_json
FROM telemetry_events WHERE session_id = ? ORDER BY timestamp_ms ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry by session: %w", err)
	}
	return scanEvents(rows)
}

// QuerySince returns every event at or after sinceMs, oldest first.
func (s *queryStore) QuerySince(ctx context.Context, sinceMs int64) ([]RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_type, event_id, session_id, request_id, trace_id, timestamp_ms, payload_json
FROM telemetry_events WHERE timestamp_ms >= ? ORDER BY timestamp_ms ASC
`, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry since %d: %w", sinceMs, err)
	}
	return scanEvents(rows)
}

// pruneOlderThan deletes every event strictly before cutoffMs, returning
// the number of rows removed.
func (s *queryStore) pruneOlderThan(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE timestamp_ms < ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("pruning telemetry events: %w", err)
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]RawEvent, error) {
	defer rows.Close()
	var out []RawEvent
	for rows.Next() {
		var e RawEvent
		var payload string
		var eventType string
		if err := rows.Scan(&eventType, &e.EventID, &e.SessionID, &e.RequestID, &e.TraceID, &e.TimestampMs, &payload); err != nil {
			return nil, fmt.Errorf("scanning telemetry event row: %w", err)
		}
		e.EventType = ucp.EventType(eventType)
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}
