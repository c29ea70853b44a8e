// Package telemetry is the Telemetry Store: an append-only JSONL event
// log, an indexed sqlite query surface, and a Prometheus metrics
// exposition, with a background retention sweep.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// Store is the Telemetry Store component.
type Store struct {
	jsonl   *jsonlWriter
	query   *queryStore
	metrics *Metrics

	retention time.Duration
	sweepEvery time.Duration
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New opens the JSONL append log at jsonlDir and the indexed query store
// at dbPath, and starts the background retention sweep (default interval
// 1h). retentionDays <= 0 disables pruning.
func New(jsonlDir, dbPath string, retentionDays int) (*Store, error) {
	jw, err := newJSONLWriter(jsonlDir)
	if err != nil {
		return nil, err
	}
	qs, err := newQueryStore(dbPath)
	if err != nil {
		_ = jw.Close()
		return nil, err
	}

	retention := time.Duration(retentionDays) * 24 * time.Hour

	s := &Store{
		jsonl:      jw,
		query:      qs,
		metrics:    NewMetrics(),
		retention:  retention,
		sweepEvery: time.Hour,
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	go s.runSweep()

	return s, nil
}

// Metrics exposes the Prometheus collectors, for wiring /metrics.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Close stops the retention sweep and releases the JSONL and query
// store handles.
func (s *Store) Close() error {
	close(s.stopSweep)
	<-s.sweepDone

	if err := s.jsonl.Close(); err != nil {
		return err
	}
	return s.query.Close()
}

// RecordRouting persists a RoutingEvent and observes router latency.
func (s *Store) RecordRouting(ctx context.Context, ev ucp.RoutingEvent) error {
	ev.EventType = ucp.EventRouting
	if err := s.jsonl.append(ev.TimestampMs, ev); err != nil {
		return fmt.Errorf("appending routing event: %w", err)
	}
	if err := s.query.insert(ctx, ucp.EventRouting, ev.EventID, ev.SessionID, ev.RequestID, ev.TraceID, ev.TimestampMs, ev); err != nil {
		return err
	}
	s.metrics.ObserveRouterLatency(ev.SelectionTimeMs)
	return nil
}

// RecordToolCall persists a ToolCallEvent and increments the tool
// invocation counter.
func (s *Store) RecordToolCall(ctx context.Context, ev ucp.ToolCallEvent) error {
	ev.EventType = ucp.EventToolCall
	if err := s.jsonl.append(ev.TimestampMs, ev); err != nil {
		return fmt.Errorf("appending tool call event: %w", err)
	}
	if err := s.query.insert(ctx, ucp.EventToolCall, ev.EventID, ev.SessionID, ev.RequestID, ev.TraceID, ev.TimestampMs, ev); err != nil {
		return err
	}
	s.metrics.IncToolInvocation(ev.ToolName, ev.Success)
	return nil
}

// RecordReward persists a RewardSignal.
func (s *Store) RecordReward(ctx context.Context, ev ucp.RewardSignal) error {
	ev.EventType = ucp.EventReward
	if err := s.jsonl.append(ev.TimestampMs, ev); err != nil {
		return fmt.Errorf("appending reward event: %w", err)
	}
	return s.query.insert(ctx, ucp.EventReward, ev.EventID, ev.SessionID, ev.RequestID, ev.TraceID, ev.TimestampMs, ev)
}

// RecordContextShift increments the context-shift counter when the
// detected domain changes between two consecutive routing events for a
// session. Returns whether a shift was recorded.
func (s *Store) RecordContextShift(previousDomain, currentDomain string) bool {
	if previousDomain == currentDomain {
		return false
	}
	if previousDomain == "" {
		return false
	}
	s.metrics.IncContextShift()
	return true
}

// UpdateBreakerGauge mirrors a connection pool's breaker state into the
// ucp_breaker_state gauge.
func (s *Store) UpdateBreakerGauge(serverName string, state ucp.BreakerState) {
	s.metrics.SetBreakerState(serverName, state)
}

// QueryBySession returns every telemetry event recorded for a session.
func (s *Store) QueryBySession(ctx context.Context, sessionID string) ([]RawEvent, error) {
	return s.query.QueryBySession(ctx, sessionID)
}

// QuerySince returns every telemetry event at or after the given time.
func (s *Store) QuerySince(ctx context.Context, since time.Time) ([]RawEvent, error) {
	return s.query.QuerySince(ctx, since.UnixMilli())
}

func (s *Store) runSweep() {
	defer close(s.sweepDone)
	if s.retention <= 0 {
		<-s.stopSweep
		return
	}

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.retention).UnixMilli()

	n, err := s.query.pruneOlderThan(ctx, cutoff)
	if err != nil {
		logging.Errorf("telemetry: retention sweep query prune: %v", err)
	} else if n > 0 {
		logging.Infof("telemetry: retention sweep pruned %d indexed events", n)
	}

	if err := s.pruneOldJSONLFiles(cutoff); err != nil {
		logging.Errorf("telemetry: retention sweep jsonl prune: %v", err)
	}
}

func (s *Store) pruneOldJSONLFiles(cutoffMs int64) error {
	entries, err := os.ReadDir(s.jsonl.dir)
	if err != nil {
		return fmt.Errorf("reading telemetry jsonl dir: %w", err)
	}
	cutoffDate := time.UnixMilli(cutoffMs).UTC().Format("2006-01-02")
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := parseJSONLDate(e.Name())
		if !ok || date >= cutoffDate {
			continue
		}
		if err := os.Remove(filepath.Join(s.jsonl.dir, e.Name())); err != nil {
			logging.Warnf("telemetry: removing expired jsonl file %s: %v", e.Name(), err)
		}
	}
	return nil
}

func parseJSONLDate(name string) (string, bool) {
	const prefix, suffix = "ucp_telemetry_", ".jsonl"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	if len(date) != len("2006-01-02") {
		return "", false
	}
	return date, true
}
