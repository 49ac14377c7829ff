package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/apperrors"
	"dm-service/internal/chat"
	"dm-service/internal/mocks"
	"dm-service/internal/models"
)

var (
	_ ChatService    = (*mocks.ChatServiceMock)(nil)
	_ AccountService = (*mocks.AccountServiceMock)(nil)
	_ Auditor        = (*mocks.AuditorMock)(nil)
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations/direct", handler.OpenDirect)
	r.POST("/conversations/group", handler.CreateGroup)
	r.DELETE("/conversations/:conversation_id/me", handler.HideConversation)
	r.GET("/conversations/:conversation_id/messages", handler.ListMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.POST("/conversations/:conversation_id/typing", handler.PingTyping)
	r.GET("/conversations/:conversation_id/typing", handler.ListTyping)
	r.DELETE("/messages/:message_id", handler.DeleteMessage)
	r.POST("/messages/:message_id/hide", handler.HideMessage)
	r.DELETE("/messages/:message_id/hide", handler.UnhideMessage)
	r.POST("/messages/:message_id/reactions", handler.ToggleReaction)
	r.GET("/users/:user_id", handler.Profile)
	return r
}

func serve(router *gin.Engine, method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsSuccess(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))

	text := "hi"
	svc.On("ListConversations", mock.Anything, 1).Return([]models.ConversationSummary{{
		Conversation: models.Conversation{ID: 3, Participants: []int{1, 2}},
		LastMessage:  &models.Message{ID: 9, Content: &text},
		UnreadCount:  2,
	}}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 2, resp.Conversations[0].UnreadCount)
	svc.AssertExpectations(t)
}

func TestListConversationsInternalErrorIsOpaque(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("ListConversations", mock.Anything, 1).Return(nil, fmt.Errorf("list conversations: %w", apperrors.ErrInternal)).Once()

	rec := serve(router, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","kind":"internal"}`, rec.Body.String())
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := map[error]int{
		apperrors.ErrNotAuthorized:    http.StatusForbidden,
		apperrors.ErrInvalidOperation: http.StatusBadRequest,
		apperrors.ErrNotFound:         http.StatusNotFound,
		apperrors.ErrConflict:         http.StatusConflict,
		assert.AnError:                http.StatusInternalServerError,
	}
	for err, status := range cases {
		svc := new(mocks.ChatServiceMock)
		router := setupChatRouter(NewChatHandler(svc, nil))
		svc.On("HideMessage", mock.Anything, 1, 8).Return(fmt.Errorf("hide message: %w", err)).Once()

		rec := serve(router, http.MethodPost, "/messages/8/hide", nil)
		assert.Equal(t, status, rec.Code, err.Error())
	}
}

func TestOpenDirect(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("OpenDirect", mock.Anything, 1, 2).Return(models.Conversation{ID: 10, Participants: []int{1, 2}}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"user_id":2}`))
	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)

	rec = serve(router, http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroup(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	name := "team"
	svc.On("CreateGroup", mock.Anything, 1, "team", []int{2, 3}).Return(models.Conversation{ID: 4, IsGroup: true, Name: &name}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/group", bytes.NewBufferString(`{"name":"team","member_ids":[2,3]}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestHideConversationEmitsAudit(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	audit := new(mocks.AuditorMock)
	router := setupChatRouter(NewChatHandler(svc, audit))

	svc.On("HideConversation", mock.Anything, 1, 5).Return(nil).Once()
	audit.On("Emit", mock.Anything, "INFO", "conversation 5 hidden", mock.AnythingOfType("string"), mock.MatchedBy(func(id *string) bool {
		return id != nil && *id == "1"
	})).Once()

	rec := serve(router, http.MethodDelete, "/conversations/5/me", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestListMessagesPassesCursorAndLimit(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	next := "bXNnOjQ"
	svc.On("ListMessages", mock.Anything, 1, 5, "abc", 20).Return(models.MessagePage{
		Messages:   []models.Message{{ID: 5}, {ID: 6}},
		NextCursor: &next,
	}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations/5/messages?cursor=abc&limit=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page models.MessagePage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, next, *page.NextCursor)
	svc.AssertExpectations(t)
}

func TestListMessagesBadInput(t *testing.T) {
	router := setupChatRouter(NewChatHandler(new(mocks.ChatServiceMock), nil))

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/conversations/abc/messages", nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/conversations/5/messages?limit=many", nil).Code)
}

func TestPostMessageJSON(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	text := "hi"
	svc.On("SendMessage", mock.Anything, 1, 5, chat.SendInput{Content: "hi"}).
		Return([]models.Message{{ID: 7, ConversationID: 5, SenderID: 1, Kind: models.KindText, Content: &text}}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestPostMessageMultipart(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("content", "look"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="cat.png"`)
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	svc.On("SendMessage", mock.Anything, 1, 5, mock.MatchedBy(func(in chat.SendInput) bool {
		return in.Content == "look" && len(in.Files) == 1 &&
			in.Files[0].Filename == "cat.png" && in.Files[0].MimeType == "image/png" && len(in.Files[0].Data) == 4
	})).Return([]models.Message{{ID: 1}, {ID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestPostMessageNotParticipant(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("SendMessage", mock.Anything, 1, 5, chat.SendInput{Content: "hi"}).
		Return(nil, fmt.Errorf("send message: not a participant: %w", apperrors.ErrNotAuthorized)).Once()

	rec := serve(router, http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteMessage(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	audit := new(mocks.AuditorMock)
	router := setupChatRouter(NewChatHandler(svc, audit))

	svc.On("DeleteMessage", mock.Anything, 1, 9).Return(nil).Once()
	audit.On("Emit", mock.Anything, "INFO", "message 9 deleted", mock.Anything, mock.Anything).Once()
	require.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/messages/9", nil).Code)

	svc.On("DeleteMessage", mock.Anything, 1, 10).Return(apperrors.ErrNotAuthorized).Once()
	audit.On("Emit", mock.Anything, "ERROR", "delete message failed", mock.Anything, mock.Anything).Once()
	require.Equal(t, http.StatusForbidden, serve(router, http.MethodDelete, "/messages/10", nil).Code)

	svc.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestUnhideMessage(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("UnhideMessage", mock.Anything, 1, 9).Return(nil).Once()

	require.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/messages/9/hide", nil).Code)
	svc.AssertExpectations(t)
}

func TestToggleReaction(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("ToggleReaction", mock.Anything, 1, 9, "🔥").Return(true, nil).Once()

	rec := serve(router, http.MethodPost, "/messages/9/reactions", bytes.NewBufferString(`{"emoji":"🔥"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message_id":9,"emoji":"🔥","added":true}`, rec.Body.String())

	rec = serve(router, http.MethodPost, "/messages/9/reactions", bytes.NewBufferString(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestTyping(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	expiresAt := time.Date(2024, 3, 1, 9, 0, 5, 0, time.UTC)
	svc.On("PingTyping", mock.Anything, 1, 5).Return(expiresAt, nil).Once()
	svc.On("ListTyping", mock.Anything, 1, 5).Return([]int{2}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/5/typing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expires_at":"2024-03-01T09:00:05Z"}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/conversations/5/typing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_ids":[2]}`, rec.Body.String())
	svc.AssertExpectations(t)
}

func TestProfile(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	router := setupChatRouter(NewChatHandler(svc, nil))
	svc.On("Profile", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob", PasswordHash: "secret"}, nil).Once()
	svc.On("Profile", mock.Anything, 3).Return(nil, apperrors.ErrNotFound).Once()

	rec := serve(router, http.MethodGet, "/users/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/users/3", nil).Code)
	svc.AssertExpectations(t)
}
