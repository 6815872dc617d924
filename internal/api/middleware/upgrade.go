package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UpgradeGate drops WebSocket upgrade attempts outside prefix. The TCP
// connection is closed without any handshake response.
func UpgradeGate(prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		if !websocket.IsWebSocketUpgrade(req) || strings.HasPrefix(req.URL.Path, prefix) {
			c.Next()
			return
		}

		if logger != nil {
			logger.Debug("Rejected upgrade",
				zap.String("path", req.URL.Path),
				zap.String("remote", c.ClientIP()),
			)
		}

		conn, _, err := c.Writer.Hijack()
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		_ = conn.Close()
		c.Abort()
	}
}
