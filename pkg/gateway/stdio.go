package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ucp-project/ucp/internal/logging"
)

// stdioTransportKey is the single session key a stdio connection maps
// to: one process, one client, one conversation.
const stdioTransportKey = "stdio"

// ServeStdio runs the Gateway over newline-delimited JSON-RPC frames on
// r/w until r is exhausted or ctx is canceled. Frames are handled
// sequentially in arrival order, matching spec.md's within-session
// ordering guarantee without needing a response-reordering buffer.
func ServeStdio(ctx context.Context, gw *Server, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := gw.HandleFrame(ctx, stdioTransportKey, []byte(line))
		if resp == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", resp); err != nil {
			return fmt.Errorf("writing stdio response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		logging.Errorf("gateway: stdio scan error: %v", err)
		return err
	}
	return nil
}
