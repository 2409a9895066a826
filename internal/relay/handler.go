package relay

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"channel-chat/internal/store"
)

// NewUpgrader builds a websocket upgrader that accepts the configured
// origins plus localhost variants for development.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
		},
	}
}

// ServeWS upgrades a connection into a relay session. The channel is
// fixed by the channelId query parameter at handshake time; a missing
// or unknown id rejects the connection before it ever joins.
func ServeWS(hub *Hub, st *store.Store, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID := c.Query("channelId")
		if channelID == "" {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if !st.Has(channelID) {
			slog.Debug("rejecting session for unknown channel", "channelID", channelID)
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "channelID", channelID, "error", err)
			return
		}

		client := NewClient(hub, conn, channelID)
		client.Start()
	}
}
