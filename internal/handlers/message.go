package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DeleteMessage soft-deletes a message for everyone (sender only).
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}

	if err := h.svc.DeleteMessage(c.Request.Context(), c.GetInt("userID"), messageID); err != nil {
		h.emitAudit(c, "ERROR", "delete message failed")
		respondError(c, err)
		return
	}

	h.emitAudit(c, "INFO", fmt.Sprintf("message %d deleted", messageID))
	c.Status(http.StatusNoContent)
}

// HideMessage hides another participant's message for the caller.
func (h *ChatHandler) HideMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	if err := h.svc.HideMessage(c.Request.Context(), c.GetInt("userID"), messageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnhideMessage reverts HideMessage.
func (h *ChatHandler) UnhideMessage(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	if err := h.svc.UnhideMessage(c.Request.Context(), c.GetInt("userID"), messageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleReaction adds or removes the caller's emoji reaction.
func (h *ChatHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := paramID(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.svc.ToggleReaction(c.Request.Context(), c.GetInt("userID"), messageID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "emoji": req.Emoji, "added": added})
}
