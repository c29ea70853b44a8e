// Package session is the Session Manager: per-client conversation state,
// held behind a pluggable Store (embedded sqlite by default, Redis as an
// alternative shared store).
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// Store is the persistence surface the Manager delegates to. Sessions are
// opaque, unguessable string keys; nothing in Manager assumes a
// particular backing technology.
type Store interface {
	Save(ctx context.Context, s *ucp.SessionState) error
	Load(ctx context.Context, id string) (*ucp.SessionState, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ErrNotFound is returned by Store.Load when the session id is unknown.
var ErrNotFound = fmt.Errorf("session: not found")

// recentToolsCap is the default bound on SessionState.RecentTools,
// spec.md §4.4's "most recent N (default 10)".
const recentToolsCap = 10

// decayHalfLife sets the geometric decay applied to recent-tool recency
// when read as a router feature; each invocation's weight halves every
// decayHalfLife entries back in the ring buffer.
const decayHalfLife = 3.0

// Manager is the Session Manager.
type Manager struct {
	store        Store
	recentToolsN int
}

// New constructs a Manager over the given Store. recentToolsN overrides
// the default ring-buffer size if > 0.
func New(store Store, recentToolsN int) *Manager {
	if recentToolsN <= 0 {
		recentToolsN = recentToolsCap
	}
	return &Manager{store: store, recentToolsN: recentToolsN}
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateSession creates a new, empty session and persists it.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	now := time.Now()
	s := &ucp.SessionState{
		SessionID: newSessionID(),
		ToolUsage: map[string]int{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return s.SessionID, nil
}

// Get returns the session state for id.
func (m *Manager) Get(ctx context.Context, id string) (*ucp.SessionState, error) {
	return m.store.Load(ctx, id)
}

// AppendMessage appends one message to the session's totally-ordered
// history.
func (m *Manager) AppendMessage(ctx context.Context, id string, role ucp.MessageRole, content string) error {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	s.Messages = append(s.Messages, ucp.Message{Role: role, Content: content, Timestamp: time.Now()})
	s.UpdatedAt = time.Now()
	return m.store.Save(ctx, s)
}

// SetTraceContext overlays the session's current trace/request ids.
func (m *Manager) SetTraceContext(ctx context.Context, id, traceID, requestID string) error {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	s.TraceID = traceID
	s.RequestID = requestID
	s.UpdatedAt = time.Now()
	return m.store.Save(ctx, s)
}

// LogToolUsage records one tool invocation: bumps the usage counter and
// pushes the tool name into the bounded recent_tools ring buffer.
func (m *Manager) LogToolUsage(ctx context.Context, id, toolName string, _ bool) error {
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if s.ToolUsage == nil {
		s.ToolUsage = map[string]int{}
	}
	s.ToolUsage[toolName]++

	s.RecentTools = append(s.RecentTools, ucp.RecentTool{Name: toolName, Timestamp: time.Now()})
	if over := len(s.RecentTools) - m.recentToolsN; over > 0 {
		s.RecentTools = s.RecentTools[over:]
	}
	s.UpdatedAt = time.Now()
	return m.store.Save(ctx, s)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// LatestUserMessage returns the most recent user-role message's content,
// or "" if none exists — used by the Gateway to derive the router query
// text when the client doesn't pass an explicit context parameter.
func LatestUserMessage(s *ucp.SessionState) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == ucp.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// RecentToolDecay returns, for each tool in s.RecentTools, a decayed
// recency weight in (0, 1], most-recent entries weighted highest. This
// is computed at read time, not on write, matching spec.md §4.4.
func RecentToolDecay(s *ucp.SessionState) map[string]float64 {
	out := map[string]float64{}
	n := len(s.RecentTools)
	for i, rt := range s.RecentTools {
		// age 0 = most recent entry.
		age := float64(n - 1 - i)
		weight := math.Pow(0.5, age/decayHalfLife)
		if cur, ok := out[rt.Name]; !ok || weight > cur {
			out[rt.Name] = weight
		}
	}
	return out
}

// LastTool returns the most recently invoked tool name, or "" if none.
func LastTool(s *ucp.SessionState) string {
	if len(s.RecentTools) == 0 {
		return ""
	}
	return s.RecentTools[len(s.RecentTools)-1].Name
}
