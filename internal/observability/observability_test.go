package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	keys []string
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Body.String())
	assert.Equal(t, rec.Body.String(), rec.Header().Get(RequestIDHeader))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", IPFromRequest(req))
}

func TestDomainEventsPublish(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })

	require.NoError(t, DomainEvents{}.Publish(context.Background(), "message.sent", nil))

	pub := &capturePublisher{}
	SetPublisher(pub)
	ctx := WithRequestID(context.Background(), "req-9")
	require.NoError(t, DomainEvents{}.Publish(ctx, "message.sent", map[string]int{"id": 1}))
	assert.Equal(t, []string{"message.sent"}, pub.keys)

	env := NewEventEnvelope(ctx, "domain_event", "message.sent", nil)
	assert.Equal(t, "req-9", env.RequestID)
	assert.Empty(t, env.TraceID)

	pub.err = errors.New("channel closed")
	assert.Error(t, PublishEvent(ctx, "message.sent", env))
}
