package pool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// transport is the minimal surface the pool needs from an MCP client,
// letting the pool be tested against a fake without spawning real
// processes or HTTP servers.
type transport interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]ucp.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// mcpTransport wraps a mark3labs/mcp-go client for either stdio or
// HTTP+SSE downstream servers.
type mcpTransport struct {
	serverName string
	client     *client.Client
}

// newStdioTransport spawns command as a child process and speaks MCP
// over its stdio pipes.
func newStdioTransport(desc ucp.ServerDescriptor) (*mcpTransport, error) {
	env := make([]string, 0, len(desc.Env))
	for k, v := range desc.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := client.NewStdioMCPClient(desc.Command, env, desc.Args...)
	if err != nil {
		return nil, fmt.Errorf("creating stdio client for %s: %w", desc.Name, err)
	}
	return &mcpTransport{serverName: desc.Name, client: c}, nil
}

// newHTTPTransport connects over HTTP with SSE streaming.
func newHTTPTransport(ctx context.Context, desc ucp.ServerDescriptor) (*mcpTransport, error) {
	c, err := client.NewSSEMCPClient(desc.URL)
	if err != nil {
		return nil, fmt.Errorf("creating http client for %s: %w", desc.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting http client for %s: %w", desc.Name, err)
	}
	return &mcpTransport{serverName: desc.Name, client: c}, nil
}

// Connect performs the MCP initialize handshake.
func (t *mcpTransport) Connect(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "ucp", Version: "dev"}

	if _, err := t.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initializing %s: %w", t.serverName, err)
	}
	return nil
}

// ListTools fetches the downstream tool list and normalizes it into
// UCP's ToolSchema.
func (t *mcpTransport) ListTools(ctx context.Context) ([]ucp.ToolSchema, error) {
	resp, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools on %s: %w", t.serverName, err)
	}

	out := make([]ucp.ToolSchema, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		schemaBytes, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for %s: %w", tool.Name, err)
		}
		out = append(out, ucp.ToolSchema{
			Name:        t.serverName + "." + tool.Name,
			ServerName:  t.serverName,
			Description: tool.Description,
			InputSchema: schemaBytes,
		})
	}
	return out, nil
}

// CallTool invokes name (without the server-name prefix) with args.
func (t *mcpTransport) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w", t.serverName, name, err)
	}
	return result, nil
}

// Close releases the underlying client connection (and, for stdio,
// terminates the child process).
func (t *mcpTransport) Close() error {
	return t.client.Close()
}
