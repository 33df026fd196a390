package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

// Chat answers one chat turn.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req types.ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	caller, _ := CallerFrom(c)
	reply, err := h.chat.Reply(c.Request().Context(), caller.ID, req)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, reply)
	case errors.Is(err, types.ErrEmptyMessage):
		return errorJSON(c, http.StatusBadRequest, types.ErrEmptyMessage.Error())
	case errors.Is(err, types.ErrInvalidHistory):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrUnauthenticated):
		return errorJSON(c, http.StatusUnauthorized, types.ErrUnauthenticated.Error())
	case errors.Is(err, types.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, types.ErrForbidden.Error())
	case errors.Is(err, types.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "session not found")
	default:
		log.Printf("ERROR: chat turn for session %q failed: %v", req.SessionID, err)
		return errorJSON(c, http.StatusInternalServerError, "failed to generate response")
	}
}

// ListSessions lists the caller's chat sessions, most recently active first.
// GET /api/chat/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	caller, _ := CallerFrom(c)

	sessions, err := h.storage.ListChatSessions(c.Request().Context(), caller.ID)
	if err != nil {
		log.Printf("ERROR: failed to list sessions: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list sessions")
	}

	out := make([]sessionJSON, len(sessions))
	for i, s := range sessions {
		out[i] = sessionJSON{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": out})
}

// ListSessionMessages returns the messages of a session owned by the caller.
// GET /api/chat/sessions/:id/messages
func (h *Handler) ListSessionMessages(c echo.Context) error {
	caller, _ := CallerFrom(c)
	ctx := c.Request().Context()

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	session, err := h.storage.GetChatSession(ctx, c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	if err != nil {
		log.Printf("ERROR: failed to load session: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load session")
	}
	if session.UserID != caller.ID {
		return errorJSON(c, http.StatusForbidden, types.ErrForbidden.Error())
	}

	messages, err := h.storage.ListChatMessages(ctx, session.ID, limit)
	if err != nil {
		log.Printf("ERROR: failed to list messages: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to list messages")
	}

	out := make([]messageJSON, len(messages))
	for i, m := range messages {
		out[i] = messageJSON{ID: m.ID, Sender: string(m.Sender), Text: m.Text, CreatedAt: m.CreatedAt}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": out})
}
