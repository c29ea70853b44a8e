package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-project/ucp/internal/ucperrors"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// fakeTransport is a test double for transport that never touches a real
// process or network.
type fakeTransport struct {
	serverName string
	tools      []ucp.ToolSchema
	connectErr error
	callErr    error
	calls      atomic.Int32
	closed     atomic.Bool
}

func (f *fakeTransport) Connect(context.Context) error { return f.connectErr }

func (f *fakeTransport) ListTools(context.Context) ([]ucp.ToolSchema, error) {
	return f.tools, nil
}

func (f *fakeTransport) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	f.calls.Add(1)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{}, nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestPool(t *testing.T, transports map[string]*fakeTransport) *Pool {
	t.Helper()
	descs := make([]ucp.ServerDescriptor, 0, len(transports))
	for name := range transports {
		descs = append(descs, ucp.ServerDescriptor{Name: name, Transport: ucp.TransportStdio, Command: "unused"})
	}

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	cfg.CallTimeout = 0
	cfg.RateLimitPerSecond = 1000

	p := New(descs, cfg)
	p.newTransport = func(_ context.Context, desc ucp.ServerDescriptor) (transport, error) {
		return transports[desc.Name], nil
	}
	return p
}

func TestPool_ConnectAll_PopulatesTools(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{serverName: "fs", tools: []ucp.ToolSchema{{Name: "fs.read_file", ServerName: "fs"}}}
	p := newTestPool(t, map[string]*fakeTransport{"fs": ft})

	require.NoError(t, p.ConnectAll(context.Background()))

	status := p.Status()
	assert.Equal(t, ucp.StateConnected, status["fs"].State)
	assert.Equal(t, 1, status["fs"].ToolCount)

	tools := p.ListTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "fs.read_file", tools[0].Name)
}

func TestPool_ConnectAll_FailureSetsErrorState(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{connectErr: errors.New("boom")}
	p := newTestPool(t, map[string]*fakeTransport{"flaky": ft})

	require.NoError(t, p.ConnectAll(context.Background()))

	status := p.Status()
	assert.Equal(t, ucp.StateError, status["flaky"].State)
	assert.Contains(t, status["flaky"].LastError, "boom")
}

func TestPool_ConnectDisconnectConnect_Idempotent(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{serverName: "fs", tools: []ucp.ToolSchema{{Name: "fs.read_file", ServerName: "fs"}}}
	p := newTestPool(t, map[string]*fakeTransport{"fs": ft})
	ctx := context.Background()

	require.NoError(t, p.ConnectAll(ctx))
	require.NoError(t, p.DisconnectAll(ctx))
	require.NoError(t, p.ConnectAll(ctx))

	status := p.Status()
	assert.Equal(t, ucp.StateConnected, status["fs"].State)
}

func TestPool_CallTool_NoServerOwnsTool(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, map[string]*fakeTransport{})
	_, err := p.CallTool(context.Background(), "ghost.tool", nil)
	require.Error(t, err)
	assert.True(t, ucperrors.IsNoServer(err))
}

func TestPool_CallTool_SuccessRecordsBreakerSuccess(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{serverName: "fs", tools: []ucp.ToolSchema{{Name: "fs.read_file", ServerName: "fs"}}}
	p := newTestPool(t, map[string]*fakeTransport{"fs": ft})
	require.NoError(t, p.ConnectAll(context.Background()))

	result, err := p.CallTool(context.Background(), "fs.read_file", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestPool_CallTool_BreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{
		serverName: "flaky",
		tools:      []ucp.ToolSchema{{Name: "flaky.do", ServerName: "flaky"}},
		callErr:    errors.New("downstream exploded"),
	}
	p := newTestPool(t, map[string]*fakeTransport{"flaky": ft})
	p.servers["flaky"].breaker = NewCircuitBreaker(1, time.Hour)
	require.NoError(t, p.ConnectAll(context.Background()))

	_, err := p.CallTool(context.Background(), "flaky.do", nil)
	require.Error(t, err)
	assert.True(t, ucperrors.IsToolCallFailed(err))

	start := time.Now()
	_, err = p.CallTool(context.Background(), "flaky.do", nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, ucperrors.IsBreakerOpen(err))
	assert.Less(t, elapsed, 10*time.Millisecond)
}

func TestStripServerPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "read_file", stripServerPrefix("fs", "fs.read_file"))
	assert.Equal(t, "fs", stripServerPrefix("fs", "fs"))
}
