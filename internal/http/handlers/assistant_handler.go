// README: Assistant handler turning a free-text message into a request draft.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/middleware"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/assistant"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const draftTimeout = 10 * time.Second

type AssistantService interface {
	Draft(ctx context.Context, cmd assistant.DraftCommand) (*assistant.Draft, error)
}

type AssistantHandler struct {
	assistant AssistantService
}

func NewAssistantHandler(svc AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: svc}
}

type draftReq struct {
	Message string   `json:"message"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (h *AssistantHandler) Draft(c *gin.Context) {
	if h.assistant == nil {
		writeError(c, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}
	var req draftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var near *types.Point
	if req.Lat != nil && req.Lng != nil {
		p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
		if !p.Valid() {
			writeError(c, http.StatusBadRequest, "invalid coordinates")
			return
		}
		near = &p
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), draftTimeout)
	defer cancel()

	draft, err := h.assistant.Draft(ctx, assistant.DraftCommand{
		UserID:  string(middleware.CallerUID(c)),
		Message: req.Message,
		Near:    near,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, draft)
}
