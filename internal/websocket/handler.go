package websocket

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/galactic-archives/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the user's
// note events until the connection closes. allowedOrigins uses the CORS
// list; "*" accepts any origin.
func HandleWebSocket(hub *Hub, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	opts := &ws.AcceptOptions{
		InsecureSkipVerify: slices.Contains(allowedOrigins, "*"),
		OriginPatterns:     allowedOrigins,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// The server's write timeout would otherwise cut long-lived streams.
		http.NewResponseController(w).SetWriteDeadline(time.Time{})

		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}
