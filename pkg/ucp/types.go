// Package ucp holds the data model shared by every UCP subsystem: tool
// schemas, server descriptors, connection state, session state, and the
// telemetry event shapes. Other packages (zoo, router, pool, session,
// telemetry, gateway) import this package rather than each other's types.
package ucp

import (
	"encoding/json"
	"time"
)

// ToolSchema is the normalized descriptor of one downstream tool, as held
// by the Tool Zoo.
type ToolSchema struct {
	Name                 string          `json:"name"`
	ServerName           string          `json:"server_name"`
	Description          string          `json:"description"`
	InputSchema          json.RawMessage `json:"input_schema"`
	Tags                 []string        `json:"tags"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	SchemaTokenEstimate  int             `json:"schema_token_estimate"`
}

// TransportKind identifies how UCP talks to a downstream server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// ServerDescriptor is the configured downstream server. Immutable after load.
type ServerDescriptor struct {
	Name    string            `json:"name"`
	Transport TransportKind   `json:"transport"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Tags    []string          `json:"tags,omitempty"`
	Description string        `json:"description,omitempty"`

	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`
	CallTimeout    time.Duration `json:"call_timeout,omitempty"`
}

// ConnState is the per-server runtime connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// BreakerState is the per-server circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ConnectionStatus is a read-only snapshot of one server's runtime state,
// returned by the pool's status() operation.
type ConnectionStatus struct {
	ServerName string       `json:"server_name"`
	State      ConnState    `json:"state"`
	LastError  string       `json:"last_error,omitempty"`
	Breaker    BreakerState `json:"breaker"`
	ToolCount  int          `json:"tool_count"`
}

// MessageRole is the role of one conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry in a session's conversation history.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// RecentTool is one entry in a session's recent-tools ring buffer.
type RecentTool struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the per-client conversation state held by the Session
// Manager.
type SessionState struct {
	SessionID   string            `json:"session_id"`
	Messages    []Message         `json:"messages"`
	RecentTools []RecentTool      `json:"recent_tools"`
	ToolUsage   map[string]int    `json:"tool_usage"`
	TraceID     string            `json:"trace_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EventType identifies the kind of a telemetry record.
type EventType string

const (
	EventRouting  EventType = "routing"
	EventToolCall EventType = "tool_call"
	EventReward   EventType = "reward"
)

// RoutingEvent records one tools/list decision.
type RoutingEvent struct {
	EventType       EventType      `json:"event_type"`
	EventID         string         `json:"event_id"`
	SessionID       string         `json:"session_id"`
	RequestID       string         `json:"request_id"`
	TraceID         string         `json:"trace_id"`
	TimestampMs     int64          `json:"timestamp_ms"`
	Query           string         `json:"query"`
	Selected        []string       `json:"selected"`
	Scores          map[string]float64 `json:"scores"`
	StrategyUsed    string         `json:"strategy_used"`
	ExplorationTriggered bool      `json:"exploration_triggered"`
	SelectionTimeMs float64        `json:"selection_time_ms"`
	CandidateCount  int            `json:"candidate_count"`
}

// ToolCallEvent records one tools/call invocation.
type ToolCallEvent struct {
	EventType      EventType `json:"event_type"`
	EventID        string    `json:"event_id"`
	SessionID      string    `json:"session_id"`
	RequestID      string    `json:"request_id"`
	TraceID        string    `json:"trace_id"`
	TimestampMs    int64     `json:"timestamp_ms"`
	RoutingEventID string    `json:"routing_event_id"`
	ToolName       string    `json:"tool_name"`
	Success        bool      `json:"success"`
	ExecMs         float64   `json:"exec_ms"`
	ErrorCode      string    `json:"error_code,omitempty"`
}

// RewardSignal records the reward computed for one tool call.
type RewardSignal struct {
	EventType       EventType `json:"event_type"`
	EventID         string    `json:"event_id"`
	SessionID       string    `json:"session_id"`
	RequestID       string    `json:"request_id"`
	TraceID         string    `json:"trace_id"`
	TimestampMs     int64     `json:"timestamp_ms"`
	ToolCallEventID string    `json:"tool_call_event_id"`
	ToolName        string    `json:"tool_name"`
	Reward          float64   `json:"reward"`
}

// RoutingDecision is the output of Router.Route.
type RoutingDecision struct {
	Selected             []string
	Scores               map[string]float64
	StrategyUsed         string
	ExplorationTriggered bool
	SelectionTimeMs      float64
	CandidateCount       int
	Warning              string
}

// BanditWeights is the shared linear scorer's learned parameter vector.
type BanditWeights struct {
	Weights []float64 `json:"weights"`
}

// ToolBias is the learned per-tool scalar bias.
type ToolBias struct {
	ToolName string  `json:"tool_name"`
	Bias     float64 `json:"bias"`
}

// SearchMode selects the Tool Zoo's search strategy.
type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchKeyword  SearchMode = "keyword"
	SearchHybrid   SearchMode = "hybrid"
)

// ScoredTool pairs a ToolSchema with its search or rerank score.
type ScoredTool struct {
	Tool  ToolSchema
	Score float64
}

// ZooStats is the output of the Tool Zoo's stats() operation.
type ZooStats struct {
	ToolCount     int            `json:"tool_count"`
	PerServer     map[string]int `json:"per_server_count"`
	LastIndexTime time.Time      `json:"last_index_time"`
}
