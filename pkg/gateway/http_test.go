package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postFrame(t *testing.T, handler http.Handler, sessionID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_HealthAndStatus(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	handler := gw.Routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_MCPAssignsSessionHeaderWhenAbsent(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	handler := gw.Routes()

	rec := postFrame(t, handler, "", rawFrame(t, 1, methodInitialize, map[string]any{}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(sessionHeader))

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)
}

func TestRoutes_MCPReusesSuppliedSessionHeader(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	handler := gw.Routes()

	rec1 := postFrame(t, handler, "client-session", rawFrame(t, 1, methodInitialize, map[string]any{}))
	require.Empty(t, rec1.Header().Get(sessionHeader))

	id1, err := gw.resolveSession(context.Background(), "client-session")
	require.NoError(t, err)

	rec2 := postFrame(t, handler, "client-session", rawFrame(t, 2, methodToolsList, map[string]any{}))
	require.Equal(t, http.StatusOK, rec2.Code)

	id2, err := gw.resolveSession(context.Background(), "client-session")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestRoutes_MCPNotificationReturns202WithEmptyBody(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	handler := gw.Routes()

	rec := postFrame(t, handler, "conn-1", []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestRoutes_MCPDeleteTerminatesSession(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, newFakePool(), newFakeRouter(), newFakeZoo())
	handler := gw.Routes()

	postFrame(t, handler, "client-session", rawFrame(t, 1, methodInitialize, map[string]any{}))

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, "client-session")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
