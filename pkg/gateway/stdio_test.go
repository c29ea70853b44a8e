package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeStdio_HandlesFramesInOrder(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())

	in := strings.NewReader(
		string(rawFrame(t, 1, methodInitialize, map[string]any{})) + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			string(rawFrame(t, 2, methodToolsList, map[string]any{})) + "\n",
	)
	var out bytes.Buffer

	require.NoError(t, ServeStdio(context.Background(), gw, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first, second rpcResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, `1`, string(first.ID))
	require.Equal(t, `2`, string(second.ID))
}

func TestServeStdio_BlankLinesSkipped(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	in := strings.NewReader("\n\n" + string(rawFrame(t, 1, methodInitialize, map[string]any{})) + "\n\n")
	var out bytes.Buffer

	require.NoError(t, ServeStdio(context.Background(), gw, in, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
}

func TestServeStdio_StopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := strings.NewReader(string(rawFrame(t, 1, methodInitialize, map[string]any{})) + "\n")
	var out bytes.Buffer

	err := ServeStdio(ctx, gw, in, &out)
	require.Error(t, err)
}
