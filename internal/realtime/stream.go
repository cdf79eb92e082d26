package realtime

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	apierrors "github.com/taskstream/taskstream-api/internal/errors"
	"github.com/taskstream/taskstream-api/internal/middleware"
)

// heartbeatInterval keeps intermediaries from closing an idle stream.
const heartbeatInterval = 30 * time.Second

// StreamHandler upgrades an authenticated request to a server-sent event
// stream. The session joins the user's private channel implicitly and stays
// registered until the client disconnects or the hub shuts down.
func StreamHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			apierrors.InternalError(c, "Streaming unsupported")
			return
		}

		session := hub.Register(userID)
		if session == nil {
			apierrors.InternalError(c, "Server shutting down")
			return
		}
		defer hub.Unregister(session)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-session.Events():
				if !open {
					return
				}
				if err := sse.Encode(c.Writer, sse.Event{
					Event: ev.Name,
					Data:  ev.Payload,
				}); err != nil {
					log.WithError(err).WithField("user_id", userID).Debug("stream write failed")
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
