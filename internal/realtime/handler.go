package realtime

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// SetupFunc registers the streams of a freshly accepted session.
type SetupFunc func(r *http.Request, s *Session)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// websocket sessions. An empty origins list accepts any origin.
func HandleWebSocket(logger *slog.Logger, origins []string, setup SetupFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := &ws.AcceptOptions{OriginPatterns: origins}
		if len(origins) == 0 {
			opts.InsecureSkipVerify = true
		}
		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		session := NewSession(conn, logger)
		setup(r, session)
		session.Run(r.Context())
	}
}
