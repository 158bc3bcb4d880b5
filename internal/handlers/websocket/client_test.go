package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverConn upgrades a loopback connection and hands back the server side,
// so a Client can be built without going through the hub.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			conns <- conn
		}
	}))
	t.Cleanup(server.Close)

	dialer, _, err := websocket.DefaultDialer.Dial(strings.Replace(server.URL, "http", "ws", 1), nil)
	require.NoError(t, err)
	t.Cleanup(func() { dialer.Close() })
	return <-conns
}

func TestTrySendAfterCloseDoesNotPanic(t *testing.T) {
	client := &Client{
		ID:   "user-1",
		Conn: serverConn(t),
		Send: make(chan []byte, 16),
	}

	client.close()

	// a concurrent sender arriving after the close must be turned away, not
	// panic on the closed channel
	assert.False(t, client.trySend([]byte(`{"type":"pong"}`)))
	assert.NotPanics(t, func() { sendError(client, 1006, "Invalid message format") })
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	client := &Client{
		ID:   "user-1",
		Conn: serverConn(t),
		Send: make(chan []byte, 1),
	}
	t.Cleanup(client.close)

	assert.True(t, client.trySend([]byte(`a`)))
	assert.False(t, client.trySend([]byte(`b`)))
}

func TestCloseIsIdempotent(t *testing.T) {
	client := &Client{
		ID:   "user-1",
		Conn: serverConn(t),
		Send: make(chan []byte, 1),
	}

	client.close()
	assert.NotPanics(t, client.close)
}
