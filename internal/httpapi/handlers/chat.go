package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/chat"
	"github.com/circuitsapp/circuits-backend/internal/common"
)

// ownerFromContext resolves the caller's side of the ownership boundary:
// a user ID when the optional auth middleware verified one, nil for anonymous.
func ownerFromContext(c *gin.Context) *uint64 {
	if uid, ok := userIDFromContext(c); ok {
		return &uid
	}
	return nil
}

type createSessionReq struct {
	Title string `json:"title" binding:"required,max=100"`
	Model string `json:"model" binding:"required,oneof=gpt-3.5-turbo gpt-4 gpt-4-turbo"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "title and a supported model are required")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), ownerFromContext(c), req.Title, req.Model)
	if err != nil {
		if errors.Is(err, chat.ErrUnsupportedModel) {
			common.Fail(c, http.StatusBadRequest, 10006, "unsupported model")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, sess)
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	sess, msgs, err := h.ChatSvc.GetSessionWithMessages(c.Request.Context(), ownerFromContext(c), sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to fetch session")
		return
	}

	common.OK(c, gin.H{"session": sess, "messages": msgs})
}

type updateSessionReq struct {
	Title *string `json:"title" binding:"omitempty,max=100"`
	Model *string `json:"model" binding:"omitempty,oneof=gpt-3.5-turbo gpt-4 gpt-4-turbo"`
}

func (h *Handler) UpdateChatSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req updateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid session update payload")
		return
	}

	sess, err := h.ChatSvc.UpdateSession(c.Request.Context(), ownerFromContext(c), sessionID, req.Title, req.Model)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
		case errors.Is(err, chat.ErrNoFields):
			common.Fail(c, http.StatusBadRequest, 10005, "no fields to update")
		case errors.Is(err, chat.ErrUnsupportedModel):
			common.Fail(c, http.StatusBadRequest, 10006, "unsupported model")
		default:
			common.Fail(c, http.StatusInternalServerError, 50002, "failed to update session")
		}
		return
	}

	common.OK(c, sess)
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.ChatSvc.DeleteSession(c.Request.Context(), ownerFromContext(c), sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to delete session")
		return
	}

	common.OK(c, gin.H{"message": "session deleted"})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
	Model   string `json:"model" binding:"omitempty,oneof=gpt-3.5-turbo gpt-4 gpt-4-turbo"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "message required")
		return
	}

	// req.Model is accepted for wire compatibility but the session's stored
	// model decides what the provider is called with.
	res, err := h.ChatSvc.SubmitTurn(c.Request.Context(), ownerFromContext(c), sessionID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40404, "session not found")
		case errors.Is(err, chat.ErrGeneration):
			log.Printf("[SendChatMessage] generation failed session=%s err=%v", sessionID, err)
			common.Fail(c, http.StatusInternalServerError, 50003, "completion provider error")
		default:
			log.Printf("[SendChatMessage] turn failed session=%s err=%v", sessionID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "failed to send message")
		}
		return
	}

	common.OK(c, res)
}

func (h *Handler) UsageSummary(c *gin.Context) {
	usage, err := h.ChatSvc.Usage(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to fetch usage")
		return
	}
	common.OK(c, usage)
}
