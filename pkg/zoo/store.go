package zoo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// indexedTool is one ToolSchema plus its embedding vector, as held by the
// in-memory snapshot and persisted by vectorStore.
type indexedTool struct {
	schema ucp.ToolSchema
	vector []float32
}

// vectorStore is the persistent backing store for the Tool Zoo's index,
// table `tool_vectors`. A pure-Go sqlite driver is used so the module
// stays cgo-free, matching the teacher's own choice.
type vectorStore struct {
	db *sql.DB
}

// openVectorStore opens (creating if needed) the sqlite database at path
// and ensures the schema exists.
func openVectorStore(path string) (*vectorStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening zoo store: %w", err)
	}
	s := &vectorStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *vectorStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS tool_vectors (
	server_name TEXT NOT NULL,
	tool_name TEXT NOT NULL PRIMARY KEY,
	schema_json TEXT NOT NULL,
	vector_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_vectors_server ON tool_vectors(server_name);
`)
	if err != nil {
		return fmt.Errorf("migrating zoo store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *vectorStore) Close() error {
	return s.db.Close()
}

// ReplaceServer atomically deletes all rows for serverName and inserts
// tools in their place, so re-indexing one server invalidates only its
// own vectors.
func (s *vectorStore) ReplaceServer(ctx context.Context, serverName string, tools []indexedTool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning zoo store transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_vectors WHERE server_name = ?`, serverName); err != nil {
		return fmt.Errorf("clearing server %s: %w", serverName, err)
	}
	if err := insertTools(ctx, tx, tools); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAll atomically replaces the entire index.
func (s *vectorStore) ReplaceAll(ctx context.Context, tools []indexedTool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning zoo store transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_vectors`); err != nil {
		return fmt.Errorf("clearing zoo store: %w", err)
	}
	if err := insertTools(ctx, tx, tools); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTools(ctx context.Context, tx *sql.Tx, tools []indexedTool) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO tool_vectors (server_name, tool_name, schema_json, vector_json)
VALUES (?, ?, ?, ?)
ON CONFLICT(tool_name) DO UPDATE SET server_name=excluded.server_name, schema_json=excluded.schema_json, vector_json=excluded.vector_json
`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tools {
		schemaJSON, err := json.Marshal(t.schema)
		if err != nil {
			return fmt.Errorf("marshaling schema for %s: %w", t.schema.Name, err)
		}
		vecJSON, err := json.Marshal(t.vector)
		if err != nil {
			return fmt.Errorf("marshaling vector for %s: %w", t.schema.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, t.schema.ServerName, t.schema.Name, schemaJSON, vecJSON); err != nil {
			return fmt.Errorf("inserting %s: %w", t.schema.Name, err)
		}
	}
	return nil
}

// LoadAll reads every persisted tool back, used to rebuild the in-memory
// snapshot on startup.
func (s *vectorStore) LoadAll(ctx context.Context) ([]indexedTool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT schema_json, vector_json FROM tool_vectors`)
	if err != nil {
		return nil, fmt.Errorf("loading zoo store: %w", err)
	}
	defer rows.Close()

	var out []indexedTool
	for rows.Next() {
		var schemaJSON, vecJSON string
		if err := rows.Scan(&schemaJSON, &vecJSON); err != nil {
			return nil, fmt.Errorf("scanning zoo store row: %w", err)
		}
		var t indexedTool
		if err := json.Unmarshal([]byte(schemaJSON), &t.schema); err != nil {
			return nil, fmt.Errorf("unmarshaling schema: %w", err)
		}
		if err := json.Unmarshal([]byte(vecJSON), &t.vector); err != nil {
			return nil, fmt.Errorf("unmarshaling vector: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
