package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/internal/ucperrors"
	"github.com/ucp-project/ucp/pkg/router"
	"github.com/ucp-project/ucp/pkg/session"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// dispatch routes one parsed JSON-RPC frame to its handler. It returns
// nil for a notification, which gets no response frame at all.
func (s *Server) dispatch(ctx context.Context, ucpSessionID string, req rpcRequest) *rpcResponse {
	switch req.Method {
	case methodInitialize:
		resp := s.handleInitialize(req)
		return &resp
	case methodNotificationInitialized:
		return nil
	case methodPing:
		resp := newResult(req.ID, map[string]any{})
		return &resp
	case methodToolsList:
		resp := s.handleToolsList(ctx, ucpSessionID, req)
		return &resp
	case methodToolsCall:
		resp := s.handleToolsCall(ctx, ucpSessionID, req)
		return &resp
	default:
		if req.isNotification() {
			return nil
		}
		resp := newError(req.ID, methodNotFoundCode, fmt.Sprintf("unknown method %q", req.Method), nil)
		return &resp
	}
}

// serverName/serverVersion identify UCP to MCP clients during initialize.
const (
	serverName    = "ucp-gateway"
	serverVersion = "0.1.0"
)

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

func (s *Server) handleInitialize(req rpcRequest) rpcResponse {
	var params initializeParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}

	protocolVersion := params.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}

	return newResult(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo: mcp.Implementation{Name: serverName, Version: serverVersion},
	})
}

// metaEnvelope pulls the `_meta` bag out of a tools/list or tools/call
// params object without committing to mcp-go's exact Params struct
// shape, since only the bag's presence (not its type) is load-bearing
// here.
type metaEnvelope struct {
	Meta map[string]any `json:"_meta"`
}

func extractQuery(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var env metaEnvelope
	if err := json.Unmarshal(params, &env); err != nil || env.Meta == nil {
		return ""
	}
	q, _ := env.Meta["query"].(string)
	return q
}

func (s *Server) handleToolsList(ctx context.Context, ucpSessionID string, req rpcRequest) rpcResponse {
	sess, err := s.sessions.Get(ctx, ucpSessionID)
	if err != nil {
		return newError(req.ID, invalidRequestCode, "session lookup failed", err.Error())
	}

	query := extractQuery(req.Params)
	if query == "" {
		query = session.LatestUserMessage(sess)
	}

	traceID := uuid.NewString()
	requestID := uuid.NewString()
	if err := s.sessions.SetTraceContext(ctx, ucpSessionID, traceID, requestID); err != nil {
		logging.Warnf("gateway: setting trace context for %s: %v", ucpSessionID, err)
	}

	decision := s.router.Route(ctx, query, sess, s.cfg.MaxTools, s.cfg.MaxContextTokens)

	domain := router.ClassifyDomain(query)
	eventID := uuid.NewString()
	previous, hadPrevious := s.rememberRouting(ucpSessionID, eventID, domain)
	if hadPrevious && s.telemetry != nil {
		s.telemetry.RecordContextShift(previous.domain, domain)
	}

	if s.telemetry != nil {
		ev := ucp.RoutingEvent{
			EventID:              eventID,
			SessionID:            ucpSessionID,
			RequestID:            requestID,
			TraceID:              traceID,
			TimestampMs:          time.Now().UnixMilli(),
			Query:                query,
			Selected:             decision.Selected,
			Scores:               decision.Scores,
			StrategyUsed:         decision.StrategyUsed,
			ExplorationTriggered: decision.ExplorationTriggered,
			SelectionTimeMs:      decision.SelectionTimeMs,
			CandidateCount:       decision.CandidateCount,
		}
		if err := s.telemetry.RecordRouting(ctx, ev); err != nil {
			logging.Warnf("gateway: recording routing event: %v", err)
		}
	}

	schemas := make([]ucp.ToolSchema, 0, len(decision.Selected))
	for _, name := range decision.Selected {
		if t, ok := s.zoo.Get(name); ok {
			schemas = append(schemas, t)
		}
	}

	return newResult(req.ID, mcp.ListToolsResult{Tools: toMCPTools(schemas)})
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, ucpSessionID string, req rpcRequest) rpcResponse {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, invalidRequestCode, "invalid tools/call params", err.Error())
	}

	sess, err := s.sessions.Get(ctx, ucpSessionID)
	if err != nil {
		return newError(req.ID, invalidRequestCode, "session lookup failed", err.Error())
	}

	if _, ok := s.zoo.Get(params.Name); !ok {
		return newResult(req.ID, s.toolNotFoundResult(params.Name))
	}

	_ = s.sessions.AppendMessage(ctx, ucpSessionID, ucp.RoleAssistant, "tools/call "+params.Name)

	requestID := uuid.NewString()
	traceID := sess.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	routingEventID := ""
	if memo, ok := s.currentRoutingEvent(ucpSessionID); ok {
		routingEventID = memo.eventID
	}

	start := time.Now()
	result, callErr := s.pool.CallTool(ctx, params.Name, params.Arguments)
	execMs := float64(time.Since(start).Microseconds()) / 1000.0

	success := callErr == nil
	followupRetry := s.noteFailure(ucpSessionID, params.Name, success, start)

	_ = s.sessions.LogToolUsage(ctx, ucpSessionID, params.Name, success)

	toolCallEventID := uuid.NewString()
	errorCode := ""
	if callErr != nil {
		var ue *ucperrors.Error
		if errors.As(callErr, &ue) {
			errorCode = ue.Code
		} else {
			errorCode = ucperrors.CodeInternal
		}
	}

	if s.telemetry != nil {
		ev := ucp.ToolCallEvent{
			EventID:        toolCallEventID,
			SessionID:      ucpSessionID,
			RequestID:      requestID,
			TraceID:        traceID,
			TimestampMs:    time.Now().UnixMilli(),
			RoutingEventID: routingEventID,
			ToolName:       params.Name,
			Success:        success,
			ExecMs:         execMs,
			ErrorCode:      errorCode,
		}
		if err := s.telemetry.RecordToolCall(ctx, ev); err != nil {
			logging.Warnf("gateway: recording tool call event: %v", err)
		}
	}

	schemaTokens := 0
	if t, ok := s.zoo.Get(params.Name); ok {
		schemaTokens = t.SchemaTokenEstimate
	}
	reward := router.ComputeReward(success, execMs, schemaTokens, followupRetry, s.cfg.Reward)
	s.router.RecordReward(params.Name, reward)

	if s.telemetry != nil {
		rw := ucp.RewardSignal{
			EventID:         uuid.NewString(),
			SessionID:       ucpSessionID,
			RequestID:       requestID,
			TraceID:         traceID,
			TimestampMs:     time.Now().UnixMilli(),
			ToolCallEventID: toolCallEventID,
			ToolName:        params.Name,
			Reward:          reward,
		}
		if err := s.telemetry.RecordReward(ctx, rw); err != nil {
			logging.Warnf("gateway: recording reward signal: %v", err)
		}
	}

	if callErr != nil {
		return newResult(req.ID, s.toolCallFailedResult(params.Name, params.Arguments, errorCode, callErr))
	}
	return newResult(req.ID, result)
}

// selfCorrectionBody is the structured error payload a tool_call failure
// carries back, per spec.md §7: enough for an LLM client to recover
// without another round trip through tools/list.
type selfCorrectionBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Tool        string   `json:"tool"`
	Arguments   any      `json:"arguments,omitempty"`
	Description string   `json:"description,omitempty"`
	Parameters  []string `json:"parameters,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) toolCallFailedResult(name string, args map[string]any, code string, callErr error) *mcp.CallToolResult {
	body := selfCorrectionBody{
		Code:    code,
		Message: callErr.Error(),
		Tool:    name,
	}
	if t, ok := s.zoo.Get(name); ok {
		body.Description = t.Description
		body.Parameters = schemaParameterNames(t.InputSchema)
	}
	if len(args) > 0 {
		body.Arguments = args
	}

	result := mcp.NewToolResultStructured(body, body.Message)
	result.IsError = true
	return result
}

func (s *Server) toolNotFoundResult(name string) *mcp.CallToolResult {
	body := selfCorrectionBody{
		Code:        ucperrors.CodeToolNotFound,
		Message:     fmt.Sprintf("no tool named %q is registered", name),
		Tool:        name,
		Suggestions: nearestToolNames(name, s.zoo.AllNames(), s.cfg.MaxSuggestions),
	}
	result := mcp.NewToolResultStructured(body, body.Message)
	result.IsError = true
	return result
}

// schemaParameterNames extracts the top-level JSON Schema "properties"
// keys from a raw input schema, sorted for a deterministic suggestion
// order.
func schemaParameterNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	names := make([]string, 0, len(parsed.Properties))
	for k := range parsed.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
