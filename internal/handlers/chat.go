package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"dm-service/internal/chat"
)

const maxUploadMemory = 32 << 20

// ChatHandler manages conversation and message endpoints.
type ChatHandler struct {
	svc   ChatService
	audit Auditor
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(svc ChatService, audit Auditor) *ChatHandler {
	return &ChatHandler{svc: svc, audit: audit}
}

// ListConversations returns the conversations visible to the authenticated user.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	list, err := h.svc.ListConversations(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// OpenDirect creates or reopens the direct conversation with another user.
func (h *ChatHandler) OpenDirect(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.OpenDirect(c.Request.Context(), c.GetInt("userID"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// CreateGroup creates a group conversation owned by the caller.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []int  `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.svc.CreateGroup(c.Request.Context(), c.GetInt("userID"), req.Name, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// HideConversation hides the conversation for the requester.
func (h *ChatHandler) HideConversation(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}

	if err := h.svc.HideConversation(c.Request.Context(), c.GetInt("userID"), conversationID); err != nil {
		h.emitAudit(c, "ERROR", "hide conversation failed")
		respondError(c, err)
		return
	}

	h.emitAudit(c, "INFO", fmt.Sprintf("conversation %d hidden", conversationID))
	c.Status(http.StatusNoContent)
}

// ListMessages returns one page of history; ?cursor= continues from a previous page.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	page, err := h.svc.ListMessages(c.Request.Context(), c.GetInt("userID"), conversationID, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage stores a message. JSON bodies carry text; multipart bodies carry
// files under "files" and an optional "content" caption.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}

	var in chat.SendInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
			return
		}
		in.Content = c.PostForm("content")
		for _, fh := range c.Request.MultipartForm.File["files"] {
			upload, err := readUpload(fh)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
				return
			}
			in.Files = append(in.Files, upload)
		}
	} else {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Content = req.Content
	}

	msgs, err := h.svc.SendMessage(c.Request.Context(), c.GetInt("userID"), conversationID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"messages": msgs})
}

// PingTyping marks the caller as typing.
func (h *ChatHandler) PingTyping(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	expiresAt, err := h.svc.PingTyping(c.Request.Context(), c.GetInt("userID"), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": expiresAt})
}

// ListTyping returns the other participants currently typing.
func (h *ChatHandler) ListTyping(c *gin.Context) {
	conversationID, ok := paramID(c, "conversation_id")
	if !ok {
		return
	}
	ids, err := h.svc.ListTyping(c.Request.Context(), c.GetInt("userID"), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func readUpload(fh *multipart.FileHeader) (chat.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return chat.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return chat.Upload{}, err
	}
	return chat.Upload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + strings.ReplaceAll(name, "_", " ")})
		return 0, false
	}
	return id, true
}
