package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
	"dm-service/internal/repositories/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeBlobs struct {
	mu     sync.Mutex
	stored []string
}

func (b *fakeBlobs) Store(ctx context.Context, data []byte, folder string, filename string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	url := fmt.Sprintf("https://files.test/%s/%d-%s", folder, len(b.stored), filename)
	b.stored = append(b.stored, url)
	return url, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	messages  []models.Message
	deletions []int
	reactions []bool
	typing    []int
}

func (n *recordingNotifier) BroadcastMessages(conversationID int, msgs []models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msgs...)
}

func (n *recordingNotifier) BroadcastDeletion(conversationID int, messageID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletions = append(n.deletions, messageID)
}

func (n *recordingNotifier) BroadcastReaction(conversationID int, reaction models.Reaction, added bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reactions = append(n.reactions, added)
}

func (n *recordingNotifier) BroadcastTyping(conversationID int, userID int, expiresAt time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.typing = append(n.typing, userID)
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	clock    *fakeClock
	blobs    *fakeBlobs
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	blobs := &fakeBlobs{}
	notifier := &recordingNotifier{}
	svc := NewService(Deps{
		Conversations: store,
		Messages:      store,
		Visibility:    store,
		Presence:      store,
		Users:         store,
		Blobs:         blobs,
		Notifier:      notifier,
		Logger:        slogt.New(t),
		Now:           clock.Now,
	})
	return &fixture{svc: svc, store: store, clock: clock, blobs: blobs, notifier: notifier}
}

func (f *fixture) user(t *testing.T, name string) int {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), name, "hash")
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) direct(t *testing.T, a, b int) models.Conversation {
	t.Helper()
	conv, err := f.svc.OpenDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

// send posts a text message one second after the previous one.
func (f *fixture) send(t *testing.T, sender int, conversationID int, text string) models.Message {
	t.Helper()
	f.clock.Advance(time.Second)
	msgs, err := f.svc.SendMessage(context.Background(), sender, conversationID, SendInput{Content: text})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func (f *fixture) summaries(t *testing.T, userID int) []models.ConversationSummary {
	t.Helper()
	list, err := f.svc.ListConversations(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func (f *fixture) history(t *testing.T, userID int, conversationID int) []models.Message {
	t.Helper()
	page, err := f.svc.ListMessages(context.Background(), userID, conversationID, "", MaxPageSize)
	require.NoError(t, err)
	return page.Messages
}

func ids(msgs []models.Message) []int {
	out := make([]int, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func text(m models.Message) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
