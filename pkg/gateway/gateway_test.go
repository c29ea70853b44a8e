package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ucp-project/ucp/pkg/session"
	"github.com/ucp-project/ucp/pkg/telemetry"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// fakeZoo is an in-memory toolCatalog, independent of the real Tool
// Zoo's embedding/keyword machinery.
type fakeZoo struct {
	tools map[string]ucp.ToolSchema
}

func newFakeZoo(tools ...ucp.ToolSchema) *fakeZoo {
	z := &fakeZoo{tools: map[string]ucp.ToolSchema{}}
	for _, t := range tools {
		z.tools[t.Name] = t
	}
	return z
}

func (z *fakeZoo) Get(name string) (ucp.ToolSchema, bool) {
	t, ok := z.tools[name]
	return t, ok
}

func (z *fakeZoo) AllNames() []string {
	names := make([]string, 0, len(z.tools))
	for n := range z.tools {
		names = append(names, n)
	}
	return names
}

// fakeRouter always selects a fixed slate, recording RecordReward calls
// for assertion.
type fakeRouter struct {
	selected []string
	rewards  map[string]float64
}

func newFakeRouter(selected ...string) *fakeRouter {
	return &fakeRouter{selected: selected, rewards: map[string]float64{}}
}

func (r *fakeRouter) Route(_ context.Context, _ string, _ *ucp.SessionState, _, _ int) *ucp.RoutingDecision {
	return &ucp.RoutingDecision{Selected: r.selected, StrategyUsed: "fixed", CandidateCount: len(r.selected)}
}

func (r *fakeRouter) RecordReward(toolName string, reward float64) {
	r.rewards[toolName] = reward
}

// fakePool answers CallTool from a canned map, keyed by tool name.
type fakePool struct {
	results map[string]*mcp.CallToolResult
	errs    map[string]error
	tools   []ucp.ToolSchema
}

func newFakePool() *fakePool {
	return &fakePool{results: map[string]*mcp.CallToolResult{}, errs: map[string]error{}}
}

func (p *fakePool) ListTools() []ucp.ToolSchema { return p.tools }

func (p *fakePool) Status() map[string]ucp.ConnectionStatus {
	return map[string]ucp.ConnectionStatus{}
}

func (p *fakePool) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.CallToolResult, error) {
	if err, ok := p.errs[name]; ok {
		return nil, err
	}
	if r, ok := p.results[name]; ok {
		return r, nil
	}
	return &mcp.CallToolResult{}, nil
}

func newTestGateway(t *testing.T, pool *fakePool, rt *fakeRouter, zoo *fakeZoo) *Server {
	t.Helper()

	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	sessions := session.New(store, 10)
	t.Cleanup(func() { _ = sessions.Close() })

	dir := t.TempDir()
	tel, err := telemetry.New(filepath.Join(dir, "jsonl"), filepath.Join(dir, "telemetry.db"), 7)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Close() })

	return New(DefaultConfig(), pool, rt, zoo, sessions, tel)
}

func rawFrame(t *testing.T, id int, method string, params any) []byte {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)
	frame := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  json.RawMessage(paramsJSON),
	}
	b, err := json.Marshal(frame)
	require.NoError(t, err)
	return b
}

func decodeResponse(t *testing.T, raw []byte) rpcResponse {
	t.Helper()
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleFrame_InitializeAssignsProtocolVersion(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	raw := gw.HandleFrame(context.Background(), "conn-1", rawFrame(t, 1, methodInitialize, map[string]any{}))
	require.NotNil(t, raw)

	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var initRes initializeResult
	require.NoError(t, json.Unmarshal(resultJSON, &initRes))
	require.Equal(t, mcp.LATEST_PROTOCOL_VERSION, initRes.ProtocolVersion)
}

func TestHandleFrame_NotificationGetsNoResponse(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	raw := gw.HandleFrame(context.Background(), "conn-1", []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.Nil(t, raw)
}

func TestHandleFrame_ToolsListReturnsRoutedSlate(t *testing.T) {
	t.Parallel()

	fsList := ucp.ToolSchema{Name: "fs.list_directory", ServerName: "fs", Description: "list a directory", InputSchema: json.RawMessage(`{}`)}
	zoo := newFakeZoo(fsList)
	rt := newFakeRouter("fs.list_directory")
	gw := newTestGateway(t, newFakePool(), rt, zoo)

	ctx := context.Background()
	raw := gw.HandleFrame(ctx, "conn-1", rawFrame(t, 1, methodToolsList, map[string]any{"_meta": map[string]any{"query": "list my files"}}))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var listResult mcp.ListToolsResult
	require.NoError(t, json.Unmarshal(resultJSON, &listResult))
	require.Len(t, listResult.Tools, 1)
	require.Equal(t, "fs.list_directory", listResult.Tools[0].Name)
}

func TestHandleFrame_ToolsCallSuccessRecordsPositiveReward(t *testing.T) {
	t.Parallel()

	tool := ucp.ToolSchema{Name: "fs.read_file", ServerName: "fs", InputSchema: json.RawMessage(`{}`)}
	zoo := newFakeZoo(tool)
	rt := newFakeRouter("fs.read_file")
	pool := newFakePool()
	pool.results["fs.read_file"] = &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("hello")}}
	gw := newTestGateway(t, pool, rt, zoo)

	ctx := context.Background()
	gw.HandleFrame(ctx, "conn-1", rawFrame(t, 1, methodToolsList, map[string]any{}))
	raw := gw.HandleFrame(ctx, "conn-1", rawFrame(t, 2, methodToolsCall, map[string]any{"name": "fs.read_file", "arguments": map[string]any{}}))

	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)
	require.Greater(t, rt.rewards["fs.read_file"], 0.0)
}

func TestHandleFrame_ToolNotFoundSuggestsNearestName(t *testing.T) {
	t.Parallel()

	zoo := newFakeZoo(ucp.ToolSchema{Name: "gh.delete_issue", InputSchema: json.RawMessage(`{}`)})
	gw := newTestGateway(t, newFakePool(), newFakeRouter(), zoo)

	ctx := context.Background()
	raw := gw.HandleFrame(ctx, "conn-1", rawFrame(t, 1, methodToolsCall, map[string]any{"name": "gh.delet_issue", "arguments": map[string]any{}}))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, content)

	isError, _ := result["isError"].(bool)
	require.True(t, isError)

	structured, ok := result["structuredContent"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "tool_not_found", structured["code"])
	suggestions, ok := structured["suggestions"].([]any)
	require.True(t, ok)
	require.Contains(t, suggestions, "gh.delete_issue")
}

func TestHandleFrame_ToolCallFailurePropagatesErrorCode(t *testing.T) {
	t.Parallel()

	tool := ucp.ToolSchema{Name: "flaky.do", InputSchema: json.RawMessage(`{}`)}
	zoo := newFakeZoo(tool)
	pool := newFakePool()
	pool.errs["flaky.do"] = fmt.Errorf("boom")
	gw := newTestGateway(t, pool, newFakeRouter(), zoo)

	ctx := context.Background()
	raw := gw.HandleFrame(ctx, "conn-1", rawFrame(t, 1, methodToolsCall, map[string]any{"name": "flaky.do", "arguments": map[string]any{}}))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	require.Equal(t, true, result["isError"])

	structured, ok := result["structuredContent"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "internal", structured["code"])
}

func TestHandleFrame_SameTransportKeyReusesSession(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	ctx := context.Background()

	gw.HandleFrame(ctx, "conn-1", rawFrame(t, 1, methodInitialize, map[string]any{}))
	id1, err := gw.resolveSession(ctx, "conn-1")
	require.NoError(t, err)

	id2, err := gw.resolveSession(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	gw.forgetTransport("conn-1")
	id3, err := gw.resolveSession(ctx, "conn-1")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestHandleFrame_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	raw := gw.HandleFrame(context.Background(), "conn-1", rawFrame(t, 1, "bogus/method", map[string]any{}))
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, methodNotFoundCode, resp.Error.Code)
}

func TestHandleFrame_MalformedJSONReturnsParseError(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	raw := gw.HandleFrame(context.Background(), "conn-1", []byte(`{not json`))
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, parseErrorCode, resp.Error.Code)
}
