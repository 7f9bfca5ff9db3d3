package status

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmodal/marathon/pkg/logging"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	logger, _ := logging.NewLogger("status-test")
	t.Cleanup(func() { logger.Close() })
	return NewHub(logger)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, ws.ReadJSON(&event))
	return event
}

func TestHubDeliversEventsInOrder(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	ws := dial(t, server)

	greeting := readEvent(t, ws)
	assert.Equal(t, "Connected to server", greeting.Message)
	assert.Equal(t, SeveritySuccess, greeting.Type)

	// Wait for registration before emitting.
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Emit("Step 1/10: Logging into Odoo...", SeverityInfo)
	hub.Emit("Marathon completed successfully", SeveritySuccess)

	first := readEvent(t, ws)
	assert.Equal(t, "Step 1/10: Logging into Odoo...", first.Message)
	assert.Equal(t, SeverityInfo, first.Type)

	second := readEvent(t, ws)
	assert.Equal(t, "Marathon completed successfully", second.Message)
	assert.Equal(t, SeveritySuccess, second.Type)
}

func TestHubEmitWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := newTestHub(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Emit("noise", SeverityInfo)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked with no subscribers")
	}
}

func TestHubShutdownClosesConnections(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	ws := dial(t, server)
	readEvent(t, ws) // greeting

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Shutdown()
	assert.Equal(t, 0, hub.ActiveConnections())

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
}

func TestHubShutdownDuringConnect(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	// Connections racing Shutdown must never panic: the greeting is queued
	// before the subscriber becomes visible to Shutdown's channel close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
			ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				continue
			}
			ws.Close()
		}
	}()

	for i := 0; i < 50; i++ {
		hub.Shutdown()
	}
	<-done
	hub.Shutdown()
}

func TestNotifierFunc(t *testing.T) {
	var gotMessage string
	var gotSeverity Severity
	n := NotifierFunc(func(message string, severity Severity) {
		gotMessage = message
		gotSeverity = severity
	})

	n.Emit("hello", SeverityError)
	assert.Equal(t, "hello", gotMessage)
	assert.Equal(t, SeverityError, gotSeverity)
}
