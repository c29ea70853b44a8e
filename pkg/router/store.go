package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ParamStore persists the Router's learned parameters (bandit weights,
// per-tool bias), matching spec.md §3's "learned parameters... persisted
// through their own storage handles".
type ParamStore interface {
	LoadBanditWeights(ctx context.Context) ([]float64, error)
	SaveBanditWeights(ctx context.Context, weights []float64) error
	LoadAllBias(ctx context.Context) (map[string]float64, error)
	SaveBias(ctx context.Context, toolName string, bias float64) error
	Close() error
}

// SQLiteParamStore is the default ParamStore, sharing the same sqlite
// technology as the Tool Zoo and Session Manager, in its own tables
// (bandit_weights, tool_bias) per SPEC_FULL.md §4.2.
type SQLiteParamStore struct {
	db *sql.DB
}

// NewSQLiteParamStore opens (creating if needed) the router's param store.
func NewSQLiteParamStore(path string) (*SQLiteParamStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening router param store: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS bandit_weights (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	weights_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tool_bias (
	tool_name TEXT PRIMARY KEY,
	bias REAL NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating router param store: %w", err)
	}
	return &SQLiteParamStore{db: db}, nil
}

// Close implements ParamStore.
func (s *SQLiteParamStore) Close() error {
	return s.db.Close()
}

// LoadBanditWeights implements ParamStore. Returns (nil, nil) when no
// weights have ever been saved.
func (s *SQLiteParamStore) LoadBanditWeights(ctx context.Context) ([]float64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT weights_json FROM bandit_weights WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading bandit weights: %w", err)
	}
	var weights []float64
	if err := json.Unmarshal([]byte(raw), &weights); err != nil {
		return nil, fmt.Errorf("unmarshaling bandit weights: %w", err)
	}
	return weights, nil
}

// SaveBanditWeights implements ParamStore.
func (s *SQLiteParamStore) SaveBanditWeights(ctx context.Context, weights []float64) error {
	b, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("marshaling bandit weights: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO bandit_weights (id, weights_json) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET weights_json = excluded.weights_json
`, b)
	if err != nil {
		return fmt.Errorf("saving bandit weights: %w", err)
	}
	return nil
}

// LoadAllBias implements ParamStore.
func (s *SQLiteParamStore) LoadAllBias(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, bias FROM tool_bias`)
	if err != nil {
		return nil, fmt.Errorf("loading tool bias: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var name string
		var bias float64
		if err := rows.Scan(&name, &bias); err != nil {
			return nil, fmt.Errorf("scanning tool bias row: %w", err)
		}
		out[name] = bias
	}
	return out, rows.Err()
}

// SaveBias implements ParamStore.
func (s *SQLiteParamStore) SaveBias(ctx context.Context, toolName string, bias float64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tool_bias (tool_name, bias) VALUES (?, ?)
ON CONFLICT(tool_name) DO UPDATE SET bias = excluded.bias
`, toolName, bias)
	if err != nil {
		return fmt.Errorf("saving tool bias for %s: %w", toolName, err)
	}
	return nil
}
