package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jsonlWriter is the single append-writer for the telemetry event log,
// matching spec.md §5's "Telemetry store — single append-writer" policy.
// One file per UTC day, named ucp_telemetry_YYYY-MM-DD.jsonl per spec.md
// §6.
type jsonlWriter struct {
	mu      sync.Mutex
	dir     string
	curDate string
	curFile *os.File
}

func newJSONLWriter(dir string) (*jsonlWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry jsonl dir: %w", err)
	}
	return &jsonlWriter{dir: dir}, nil
}

func (w *jsonlWriter) fileFor(tsMs int64) string {
	date := time.UnixMilli(tsMs).UTC().Format("2006-01-02")
	return filepath.Join(w.dir, fmt.Sprintf("ucp_telemetry_%s.jsonl", date))
}

// append marshals record and writes it as one line, rotating the
// underlying file if the event's day has changed.
func (w *jsonlWriter) append(tsMs int64, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling telemetry record: %w", err)
	}
	b = append(b, '\n')

	date := time.UnixMilli(tsMs).UTC().Format("2006-01-02")

	w.mu.Lock()
	defer w.mu.Unlock()

	if date != w.curDate || w.curFile == nil {
		if w.curFile != nil {
			_ = w.curFile.Close()
		}
		f, err := os.OpenFile(w.fileFor(tsMs), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening telemetry jsonl file: %w", err)
		}
		w.curFile = f
		w.curDate = date
	}

	_, err = w.curFile.Write(b)
	return err
}

func (w *jsonlWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curFile == nil {
		return nil
	}
	err := w.curFile.Close()
	w.curFile = nil
	return err
}
