// README: Live tracking websocket endpoint.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type LiveHub interface {
	Serve(ctx context.Context, ws *websocket.Conn, tripID, userID types.ID)
}

type LiveHandler struct {
	hub      LiveHub
	upgrader websocket.Upgrader
}

// NewLiveHandler accepts upgrades from any origin when allowedOrigins is
// empty; mobile clients do not send one.
func NewLiveHandler(hub LiveHub, allowedOrigins []string) *LiveHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &LiveHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Serve upgrades GET /api/trips/:id/live. Participation is checked when the
// client sends its join message.
func (h *LiveHandler) Serve(c *gin.Context) {
	tripID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.DebugContext(c.Request.Context(), "websocket upgrade failed", "trip_id", tripID, "error", err)
		return
	}
	h.hub.Serve(c.Request.Context(), ws, tripID, middleware.CallerUID(c))
}
