package render

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signavatar/internal/metrics"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(NewHub(zerolog.Nop()), zerolog.Nop(), map[string]http.Handler{
		"/metrics": metrics.New(nil).Handler(),
	})
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+AvatarEndpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastsFrames(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.hub.Render(helloFrame(), true)
	srv.hub.Render(helloFrame(), true)
	srv.hub.Render(nil, false)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageFrame, msg.Type)
	require.NotNil(t, msg.Frame)
	assert.Equal(t, "HELLO", msg.Frame.Gloss)
	assert.True(t, msg.Uncertain)

	msg = readMessage(t, conn)
	assert.Nil(t, msg.Frame, "duplicate skipped, blank frame next")
	assert.False(t, msg.Uncertain)
}

func TestHub_LateClientGetsCurrentFrame(t *testing.T) {
	srv := startServer(t)
	srv.hub.Render(helloFrame(), false)

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Frame)
	assert.Equal(t, "HELLO", msg.Frame.Gloss)
}

func TestHub_ClientDisconnect(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	srv.hub.Render(helloFrame(), false)
}

func TestServer_HealthAndExtraRoutes(t *testing.T) {
	srv := startServer(t)

	resp, err := http.Get("http://" + srv.Addr() + HealthEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Clients)

	resp, err = http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "second stop is a no-op")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "timeout"), err.Error())
}

func TestHub_HandlerWithoutServer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AvatarEndpoint, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "plain GET is not an upgrade")
}
