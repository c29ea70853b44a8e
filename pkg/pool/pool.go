// Package pool is the Connection Pool: lifecycle manager for every
// downstream MCP session, with a per-server state machine, circuit
// breaker, and retrying, timeout-wrapped calls.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ucp-project/ucp/internal/logging"
	"github.com/ucp-project/ucp/internal/ucperrors"
	"github.com/ucp-project/ucp/pkg/ucp"
)

// transportFactory creates a transport for one downstream server; swapped
// out in tests for a fake that never touches a real process or network.
type transportFactory func(ctx context.Context, desc ucp.ServerDescriptor) (transport, error)

func defaultTransportFactory(ctx context.Context, desc ucp.ServerDescriptor) (transport, error) {
	switch desc.Transport {
	case ucp.TransportStdio:
		return newStdioTransport(desc)
	case ucp.TransportHTTP:
		return newHTTPTransport(ctx, desc)
	default:
		return nil, fmt.Errorf("unknown transport kind %q for server %s", desc.Transport, desc.Name)
	}
}

// serverConn holds one downstream server's runtime state. One mutex
// guards both the state-machine transitions and the breaker's counters,
// per spec.md §5's shared-resource policy.
type serverConn struct {
	mu sync.Mutex

	desc      ucp.ServerDescriptor
	state     ucp.ConnState
	lastErr   string
	tools     map[string]ucp.ToolSchema
	transport transport
	breaker   *CircuitBreaker
	limiter   *rate.Limiter
}

// Config tunes the Pool-wide settings. Every server uses these timeouts;
// the ConnectTimeout and CallTimeout fields of a ServerDescriptor are not
// read by the pool.
type Config struct {
	FailureThreshold    int
	OpenTimeout         time.Duration
	HalfOpenMaxCalls    int
	MaxRetries          int
	BackoffBase         time.Duration
	CallTimeout         time.Duration
	ConnectTimeout      time.Duration
	RateLimitPerSecond  float64
}

// DefaultConfig matches spec.md §4.3's stated defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        60 * time.Second,
		HalfOpenMaxCalls:   3,
		MaxRetries:         3,
		BackoffBase:        time.Second,
		CallTimeout:        30 * time.Second,
		ConnectTimeout:     30 * time.Second,
		RateLimitPerSecond: 50,
	}
}

// Pool is the Connection Pool.
type Pool struct {
	cfg       Config
	servers   map[string]*serverConn
	newTransport transportFactory
}

// New constructs a Pool for the given downstream server descriptors.
// Servers start DISCONNECTED; call ConnectAll to bring them up.
func New(descs []ucp.ServerDescriptor, cfg Config) *Pool {
	p := &Pool{
		cfg:          cfg,
		servers:      make(map[string]*serverConn, len(descs)),
		newTransport: defaultTransportFactory,
	}
	for _, d := range descs {
		p.servers[d.Name] = &serverConn{
			desc:    d,
			state:   ucp.StateDisconnected,
			tools:   map[string]ucp.ToolSchema{},
			breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.OpenTimeout).WithHalfOpenMaxCalls(cfg.HalfOpenMaxCalls),
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), int(cfg.RateLimitPerSecond)+1),
		}
	}
	return p
}

// ConnectAll connects every server concurrently. Idempotent: servers
// already CONNECTED are left alone.
func (p *Pool) ConnectAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name := range p.servers {
		sc := p.servers[name]
		g.Go(func() error {
			p.connectOne(gctx, sc)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) connectOne(ctx context.Context, sc *serverConn) {
	sc.mu.Lock()
	if sc.state == ucp.StateConnected || sc.state == ucp.StateConnecting {
		sc.mu.Unlock()
		return
	}
	sc.state = ucp.StateConnecting
	sc.mu.Unlock()

	connectCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.ConnectTimeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	tr, err := p.newTransport(connectCtx, sc.desc)
	if err == nil {
		err = tr.Connect(connectCtx)
	}
	var tools []ucp.ToolSchema
	if err == nil {
		tools, err = tr.ListTools(connectCtx)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err != nil {
		sc.state = ucp.StateError
		sc.lastErr = err.Error()
		logging.Warnf("pool: connecting %s failed: %v", sc.desc.Name, err)
		return
	}

	sc.transport = tr
	sc.state = ucp.StateConnected
	sc.lastErr = ""
	sc.tools = make(map[string]ucp.ToolSchema, len(tools))
	for _, t := range tools {
		sc.tools[t.Name] = t
	}
	logging.Infof("pool: connected %s with %d tools", sc.desc.Name, len(tools))
}

// DisconnectAll disconnects every server concurrently. Idempotent.
func (p *Pool) DisconnectAll(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for name := range p.servers {
		sc := p.servers[name]
		g.Go(func() error {
			p.disconnectOne(sc)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) disconnectOne(sc *serverConn) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.transport != nil {
		if err := sc.transport.Close(); err != nil {
			logging.Warnf("pool: closing %s: %v", sc.desc.Name, err)
		}
		sc.transport = nil
	}
	sc.state = ucp.StateDisconnected
	sc.tools = map[string]ucp.ToolSchema{}
}

// ListTools aggregates tool schemas from every currently CONNECTED server.
func (p *Pool) ListTools() []ucp.ToolSchema {
	var out []ucp.ToolSchema
	for _, sc := range p.servers {
		sc.mu.Lock()
		if sc.state == ucp.StateConnected {
			for _, t := range sc.tools {
				out = append(out, t)
			}
		}
		sc.mu.Unlock()
	}
	return out
}

// Status returns a snapshot of every server's state, tool count, and
// breaker state.
func (p *Pool) Status() map[string]ucp.ConnectionStatus {
	out := make(map[string]ucp.ConnectionStatus, len(p.servers))
	for name, sc := range p.servers {
		sc.mu.Lock()
		out[name] = ucp.ConnectionStatus{
			ServerName: name,
			State:      sc.state,
			LastError:  sc.lastErr,
			Breaker:    sc.breaker.GetState(),
			ToolCount:  len(sc.tools),
		}
		sc.mu.Unlock()
	}
	return out
}

// ownerOf returns the server owning the given fully-qualified tool name.
func (p *Pool) ownerOf(name string) (*serverConn, bool) {
	for _, sc := range p.servers {
		sc.mu.Lock()
		_, ok := sc.tools[name]
		sc.mu.Unlock()
		if ok {
			return sc, true
		}
	}
	return nil, false
}

// CallTool resolves name to its owning server and invokes it, applying
// the breaker, retry/backoff, and per-request timeout policy from
// spec.md §4.3.
func (p *Pool) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	sc, ok := p.ownerOf(name)
	if !ok {
		return nil, ucperrors.NewNoServerError(fmt.Sprintf("no connected server owns tool %q", name), nil)
	}

	sc.mu.Lock()
	canAttempt := sc.breaker.CanAttempt()
	sc.mu.Unlock()
	if !canAttempt {
		return nil, ucperrors.NewBreakerOpenError(fmt.Sprintf("circuit breaker open for server %s", sc.desc.Name), nil)
	}

	toolName := stripServerPrefix(sc.desc.Name, name)

	maxRetries := p.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempts := 0
	operation := func() (*mcp.CallToolResult, error) {
		attempts++
		if err := sc.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
			defer cancel()
		}

		sc.mu.Lock()
		tr := sc.transport
		sc.mu.Unlock()
		if tr == nil {
			return nil, backoff.Permanent(fmt.Errorf("server %s has no active connection", sc.desc.Name))
		}

		result, err := tr.CallTool(callCtx, toolName, args)
		if err != nil {
			sc.mu.Lock()
			sc.state = ucp.StateError
			sc.lastErr = err.Error()
			sc.mu.Unlock()
			p.connectOne(ctx, sc) // reconnect attempt as part of retry
			return nil, err
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries)))

	if err != nil {
		sc.mu.Lock()
		sc.breaker.RecordFailure()
		sc.mu.Unlock()
		return nil, ucperrors.NewToolCallFailedError(
			fmt.Sprintf("tool %s failed after %d attempt(s): %v", name, attempts, err), err)
	}

	sc.mu.Lock()
	sc.breaker.RecordSuccess()
	sc.mu.Unlock()
	return result, nil
}

func stripServerPrefix(serverName, fullName string) string {
	prefix := serverName + "."
	if len(fullName) > len(prefix) && fullName[:len(prefix)] == prefix {
		return fullName[len(prefix):]
	}
	return fullName
}
