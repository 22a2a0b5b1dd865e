package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-telemetry/internal/auth"
)

func startWS(t *testing.T, e *env) *httptest.Server {
	t.Helper()
	authn := auth.NewStatic()
	authn.Add("tok-a", memberA)

	srv := httptest.NewServer(NewWSHandler(e.hub, authn, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func readMsg(t *testing.T, ws *websocket.Conn) message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var m message
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestWS_RejectsWithoutToken(t *testing.T) {
	srv := startWS(t, newEnv(t, Config{}))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "?token=bogus"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWS_SnapshotSubscribeAndDisconnect(t *testing.T) {
	e := newEnv(t, Config{})
	e.save(t, "a1", 27)
	srv := startWS(t, e)

	header := http.Header{}
	header.Set("Authorization", "Bearer tok-a")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)

	first := readMsg(t, ws)
	assert.Equal(t, TypeRegistrySnapshot, first.Type)
	assert.Equal(t, []string{"a1", "a2"}, sensorKeys(first.Sensors))

	require.NoError(t, ws.WriteJSON(Request{Type: TypeSubscribe, SensorID: "a1", RequestID: "r1"}))

	reading := readMsg(t, ws)
	assert.Equal(t, TypeReading, reading.Type)
	assert.Equal(t, "a1", reading.SensorID)

	result := readMsg(t, ws)
	assert.Equal(t, TypeResult, result.Type)
	assert.True(t, result.Success, result.Message)

	require.Equal(t, 1, e.hub.Registry().Len())
	require.NoError(t, ws.Close())

	assert.Eventually(t, func() bool { return e.hub.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_ServerDisconnectSendsCloseFrame(t *testing.T) {
	e := newEnv(t, Config{})
	srv := startWS(t, e)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=tok-a"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	assert.Equal(t, TypeRegistrySnapshot, readMsg(t, ws).Type)

	conns := e.hub.Registry().Snapshot()
	require.Len(t, conns, 1)
	e.hub.Disconnect(conns[0])

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
