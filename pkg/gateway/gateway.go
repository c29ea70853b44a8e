package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/pkg/router"
	"github.com/ucp-project/ucp/pkg/session"
	"github.com/ucp-project/ucp/pkg/telemetry"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// toolPool is the Connection Pool surface the Gateway depends on.
type toolPool interface {
	ListTools() []ucp.ToolSchema
	Status() map[string]ucp.ConnectionStatus
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// toolRouter is the Router surface the Gateway depends on.
type toolRouter interface {
	Route(ctx context.Context, query string, sess *ucp.SessionState, maxTools, maxContextTokens int) *ucp.RoutingDecision
	RecordReward(toolName string, reward float64)
}

// toolCatalog is the Tool Zoo surface the Gateway consults directly, for
// tool_not_found suggestions and schema lookup independent of the
// Router's own retrieval pipeline.
type toolCatalog interface {
	Get(name string) (ucp.ToolSchema, bool)
	AllNames() []string
}

// Config is the Gateway's tunable parameters. MaxTools/MaxContextTokens
// mirror the `router` YAML section's slate budget; the rest are
// gateway-specific.
type Config struct {
	MaxTools         int
	MaxContextTokens int
	MaxSuggestions   int
	Reward           router.RewardConfig
	FollowupWindow   time.Duration
}

// DefaultConfig matches SPEC_FULL.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTools:         10,
		MaxContextTokens: 4000,
		MaxSuggestions:   3,
		Reward:           router.DefaultRewardConfig(),
		FollowupWindow:   2 * time.Second,
	}
}

// routingMemo remembers enough about the most recent tools/list decision
// for a session to link the next tools/call's telemetry back to it and
// to detect a context shift on the one after that.
type routingMemo struct {
	eventID string
	domain  string
}

// failureKey identifies one (session, tool) pair for followup-retry
// detection in the reward formula.
type failureKey struct {
	sessionID string
	toolName  string
}

// Server is the Gateway Server: the orchestrator wiring the Router, Tool
// Zoo, Connection Pool, and Session Manager into the MCP surface.
type Server struct {
	cfg Config

	pool      toolPool
	router    toolRouter
	zoo       toolCatalog
	sessions  *session.Manager
	telemetry *telemetry.Store

	mu          sync.Mutex
	lastRouting map[string]routingMemo
	lastFailure map[failureKey]time.Time

	transportSessions sync.Map // transport-level session key -> ucp session id
}

// New constructs a Gateway over its dependencies.
func New(cfg Config, pool toolPool, rt toolRouter, zoo toolCatalog, sessions *session.Manager, store *telemetry.Store) *Server {
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	if cfg.FollowupWindow <= 0 {
		cfg.FollowupWindow = 2 * time.Second
	}
	return &Server{
		cfg:         cfg,
		pool:        pool,
		router:      rt,
		zoo:         zoo,
		sessions:    sessions,
		telemetry:   store,
		lastRouting: map[string]routingMemo{},
		lastFailure: map[failureKey]time.Time{},
	}
}

// resolveSession maps a transport-level session key (an MCP protocol
// session id for HTTP, or a fixed constant for a single stdio
// connection) onto a UCP session, creating one on first use. A key with
// no mapping, including a new key after a reconnect, always gets a new
// UCP session; an existing UCP session cannot be rebound to another key.
func (s *Server) resolveSession(ctx context.Context, transportKey string) (string, error) {
	if v, ok := s.transportSessions.Load(transportKey); ok {
		return v.(string), nil
	}
	id, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	s.transportSessions.Store(transportKey, id)
	return id, nil
}

// forgetTransport drops a transport-level session mapping without
// deleting the underlying persisted session state. Nothing re-attaches
// that state later: the next frame under an unmapped key starts a new
// UCP session.
func (s *Server) forgetTransport(transportKey string) {
	s.transportSessions.Delete(transportKey)
}

func (s *Server) rememberRouting(ucpSessionID, eventID, domain string) (previous routingMemo, hadPrevious bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, hadPrevious = s.lastRouting[ucpSessionID]
	s.lastRouting[ucpSessionID] = routingMemo{eventID: eventID, domain: domain}
	return previous, hadPrevious
}

func (s *Server) currentRoutingEvent(ucpSessionID string) (routingMemo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	memo, ok := s.lastRouting[ucpSessionID]
	return memo, ok
}

// HandleFrame resolves transportKey to a UCP session, parses raw as one
// JSON-RPC frame, dispatches it, and returns the marshaled response (nil
// for a notification, which gets no reply). A malformed frame or an
// unresolvable session still yields a well-formed JSON-RPC error rather
// than dropping the connection.
func (s *Server) HandleFrame(ctx context.Context, transportKey string, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := newError(nil, parseErrorCode, "parse error", err.Error())
		return mustMarshal(resp)
	}

	ucpSessionID, err := s.resolveSession(ctx, transportKey)
	if err != nil {
		logging.Errorf("gateway: resolving session for %s: %v", transportKey, err)
		resp := newError(req.ID, invalidRequestCode, "could not establish a session", err.Error())
		return mustMarshal(resp)
	}

	resp := s.dispatch(ctx, ucpSessionID, req)
	if resp == nil {
		return nil
	}
	return mustMarshal(*resp)
}

func mustMarshal(resp rpcResponse) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		logging.Errorf("gateway: marshaling response: %v", err)
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error marshaling response"}}`)
	}
	return b
}

// noteFailure records the outcome of a call to toolName for sessionID (a
// failure stores its time, a success clears it), and reports whether the
// previous call to the same tool in the same session failed within the
// configured followup window before this call — the signal
// ComputeReward's followup-retry penalty is keyed on.
func (s *Server) noteFailure(sessionID, toolName string, success bool, now time.Time) bool {
	key := failureKey{sessionID: sessionID, toolName: toolName}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasRecentFailure := false
	if last, ok := s.lastFailure[key]; ok {
		wasRecentFailure = now.Sub(last) <= s.cfg.FollowupWindow
	}

	if success {
		delete(s.lastFailure, key)
	} else {
		s.lastFailure[key] = now
	}
	return wasRecentFailure
}
