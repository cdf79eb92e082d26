package realtime

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/taskstream/taskstream-api/internal/middleware"
)

func setupStreamServer(t *testing.T, hub *Hub, userID uint64) *httptest.Server {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/api/stream", func(c *gin.Context) {
		if userID != 0 {
			c.Set(middleware.ContextKeyUserID, userID)
		}
		StreamHandler(hub)(c)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestStreamHandler_DeliversEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := setupStreamServer(t, hub, 7)

	resp, err := http.Get(server.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The session registers once the handshake completes.
	require.Eventually(t, func() bool {
		return hub.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.NotifyUser(7, EventNotificationNew, map[string]interface{}{"id": 1})

	reader := bufio.NewReader(resp.Body)
	var sawEvent, sawData bool
	deadline := time.After(2 * time.Second)
	lines := make(chan string)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	for !(sawEvent && sawData) {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before event arrived")
			}
			if strings.HasPrefix(line, "event:") {
				require.Contains(t, line, EventNotificationNew)
				sawEvent = true
			}
			if strings.HasPrefix(line, "data:") {
				require.Contains(t, line, `"id":1`)
				sawData = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for event frame")
		}
	}
}

func TestStreamHandler_Unauthenticated(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := setupStreamServer(t, hub, 0)

	resp, err := http.Get(server.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, hub.SessionCount())
}

func TestStreamHandler_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := setupStreamServer(t, hub, 7)

	resp, err := http.Get(server.URL + "/api/stream")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamHandler_HubShutdownEndsStream(t *testing.T) {
	hub := NewHub()

	server := setupStreamServer(t, hub, 7)

	resp, err := http.Get(server.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Close()

	// The response body drains to EOF once the handler returns.
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after hub shutdown")
	}
}
