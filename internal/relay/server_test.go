package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/ir"
	"github.com/roach88/geckode/internal/transport"
	"github.com/roach88/geckode/internal/wire"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := NewHub(WithLogger(discard()), WithRegisterer(reg))
	srv := NewServer(hub, NewJWTAuthorizer(testSecret), ServerOptions{Gatherer: reg, Logger: discard()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestServerHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["rooms"])
}

func TestServerMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "geckode_relay_rooms")
}

func TestServerRejectsBadToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/channels/proj-1?token=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = transport.NewWebSocketDialer(ts.URL).Dial(context.Background(), "proj-1", "bogus")
	assert.True(t, transport.IsUnauthorized(err))
}

func TestServerWebSocketSession(t *testing.T) {
	ts := newTestServer(t)
	token, err := IssueToken(testSecret, "alice", []string{"proj-1"}, PermEdit, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.NewWebSocketDialer(ts.URL).Dial(ctx, "proj-1", token)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(wire.Frame{Type: wire.FrameHello, Actor: "alice"}))
	state := recv(t, conn)
	assert.Equal(t, wire.FrameState, state.Type)

	sendDeltas(t, conn, ir.Delta{Actor: "alice", Seq: 1, Lamport: 1, Op: ir.OpInsertNode, Node: "e1", Kind: "onStart"})
	ack := recv(t, conn)
	assert.Equal(t, wire.FrameAck, ack.Type)
	assert.Equal(t, ir.Version{"alice": 1}, ack.Version)
}
