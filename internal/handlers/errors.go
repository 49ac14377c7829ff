package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/apperrors"
)

// respondError writes the status and body for a chat core error. Internal
// errors never leak their message.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if kind == apperrors.KindInternal {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "kind": kind})
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotAuthorized:
		return http.StatusForbidden
	case apperrors.KindInvalidOperation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
