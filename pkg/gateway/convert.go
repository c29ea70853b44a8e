package gateway

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// toMCPTool converts a UCP tool schema into the wire shape the mcp-go
// server advertises to clients. RawInputSchema is used instead of the
// typed InputSchema field since the schema already arrives as raw JSON
// Schema bytes from the owning downstream server.
func toMCPTool(t ucp.ToolSchema) mcp.Tool {
	return mcp.Tool{
		Name:           t.Name,
		Description:    t.Description,
		RawInputSchema: t.InputSchema,
	}
}

// toMCPTools converts a slate of schemas in order, preserving rank.
func toMCPTools(schemas []ucp.ToolSchema) []mcp.Tool {
	out := make([]mcp.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, toMCPTool(s))
	}
	return out
}
