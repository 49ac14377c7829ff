package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Profile returns a user's public profile with last-seen.
func (h *ChatHandler) Profile(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	u, err := h.svc.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
