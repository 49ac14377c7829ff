// Package memory is a process-local implementation of the repository
// interfaces, used for STORE=memory and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dm-service/internal/apperrors"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/visibility"
)

type pair struct{ a, b int }

type reactionKey struct {
	messageID int
	userID    int
	emoji     string
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	nextUserID         int
	nextConversationID int
	nextMessageID      int

	users         map[int]models.User
	usernames     map[string]int
	conversations map[int]models.Conversation
	directPairs   map[pair]int
	messages      map[int]models.Message
	byConv        map[int][]int
	convHides     map[pair]models.ConversationHide
	msgHides      map[pair]time.Time
	reads         map[pair]time.Time
	reactions     map[reactionKey]time.Time
	typing        map[pair]time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:         make(map[int]models.User),
		usernames:     make(map[string]int),
		conversations: make(map[int]models.Conversation),
		directPairs:   make(map[pair]int),
		messages:      make(map[int]models.Message),
		byConv:        make(map[int][]int),
		convHides:     make(map[pair]models.ConversationHide),
		msgHides:      make(map[pair]time.Time),
		reads:         make(map[pair]time.Time),
		reactions:     make(map[reactionKey]time.Time),
		typing:        make(map[pair]time.Time),
	}
}

var (
	_ repositories.ConversationRepository = (*Store)(nil)
	_ repositories.VisibilityRepository   = (*Store)(nil)
	_ repositories.MessageRepository      = (*Store)(nil)
	_ repositories.PresenceRepository     = (*Store)(nil)
	_ repositories.UserRepository         = (*Store)(nil)
)

func orderedPair(x, y int) pair {
	if x > y {
		x, y = y, x
	}
	return pair{x, y}
}

// users

func (s *Store) CreateUser(ctx context.Context, username string, passwordHash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[username]; ok {
		return models.User{}, fmt.Errorf("username %q: %w", username, apperrors.ErrConflict)
	}
	s.nextUserID++
	u := models.User{ID: s.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.users[u.ID] = u
	s.usernames[username] = u.ID
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return s.users[id], nil
}

// conversations

func (s *Store) CreateDirect(ctx context.Context, userID int, peerID int, createdAt time.Time) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderedPair(userID, peerID)
	if _, ok := s.directPairs[key]; ok {
		return models.Conversation{}, fmt.Errorf("direct_pairs: %w", apperrors.ErrConflict)
	}
	s.nextConversationID++
	conv := models.Conversation{
		ID:           s.nextConversationID,
		CreatorID:    userID,
		CreatedAt:    createdAt,
		Participants: []int{key.a, key.b},
	}
	s.conversations[conv.ID] = conv
	s.directPairs[key] = conv.ID
	return cloneConversation(conv), nil
}

func (s *Store) FindDirect(ctx context.Context, userID int, peerID int) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.directPairs[orderedPair(userID, peerID)]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *Store) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int, createdAt time.Time) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		set[id] = struct{}{}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	s.nextConversationID++
	groupName := name
	conv := models.Conversation{
		ID:           s.nextConversationID,
		IsGroup:      true,
		Name:         &groupName,
		CreatorID:    creatorID,
		CreatedAt:    createdAt,
		Participants: ids,
	}
	s.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (s *Store) ListForUser(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.ConversationSummary{}
	for _, conv := range s.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		var hide *models.ConversationHide
		if h, ok := s.convHides[pair{conv.ID, userID}]; ok {
			hide = &h
		}
		if visibility.StateOf(hide) == visibility.Hidden {
			continue
		}
		filter := visibility.ForReader(userID, hide)

		summary := models.ConversationSummary{Conversation: cloneConversation(conv), VisibleFrom: filter.From}
		for _, id := range s.byConv[conv.ID] {
			m := s.messages[id]
			if m.IsDeleted() || !s.admits(filter, m) {
				continue
			}
			if summary.LastMessage == nil || later(m, *summary.LastMessage) {
				preview := m
				summary.LastMessage = &preview
			}
			if m.SenderID == userID {
				continue
			}
			if _, read := s.reads[pair{m.ID, userID}]; !read {
				summary.UnreadCount++
			}
		}
		result = append(result, summary)
	}
	return result, nil
}

// visibility

func (s *Store) GetHide(ctx context.Context, conversationID int, userID int) (*models.ConversationHide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.convHides[pair{conversationID, userID}]
	if !ok {
		return nil, nil
	}
	if h.VisibleFrom != nil {
		from := *h.VisibleFrom
		h.VisibleFrom = &from
	}
	return &h, nil
}

func (s *Store) HideConversation(ctx context.Context, conversationID int, userID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convHides[pair{conversationID, userID}] = models.ConversationHide{
		ConversationID: conversationID,
		UserID:         userID,
		HiddenAt:       at,
	}
	return nil
}

func (s *Store) RestartConversation(ctx context.Context, conversationID int, userID int, from time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{conversationID, userID}
	h, ok := s.convHides[key]
	if !ok {
		return false, nil
	}
	h.VisibleFrom = &from
	s.convHides[key] = h
	return true, nil
}

func (s *Store) HideMessage(ctx context.Context, messageID int, userID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{messageID, userID}
	if _, ok := s.msgHides[key]; !ok {
		s.msgHides[key] = at
	}
	return nil
}

func (s *Store) UnhideMessage(ctx context.Context, messageID int, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.msgHides, pair{messageID, userID})
	return nil
}

// messages

func (s *Store) AppendMessages(ctx context.Context, msgs []models.Message) ([]models.Message, int64, error) {
	if len(msgs) == 0 {
		return nil, 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		s.nextMessageID++
		m.ID = s.nextMessageID
		s.messages[m.ID] = m
		s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], m.ID)
		stored = append(stored, m)
	}

	var restored int64
	convID := msgs[0].ConversationID
	for key, h := range s.convHides {
		if key.a != convID || h.VisibleFrom != nil {
			continue
		}
		from := stored[0].CreatedAt
		h.VisibleFrom = &from
		s.convHides[key] = h
		restored++
	}
	return stored, restored, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return m, nil
}

func (s *Store) ListPage(ctx context.Context, q repositories.PageQuery) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, id := range s.byConv[q.ConversationID] {
		m := s.messages[id]
		if !s.admits(q.Filter, m) {
			continue
		}
		if q.Before != nil && !later(*q.Before, m) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return later(out[i], out[j]) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, userID int, messageIDs []int, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, id := range messageIDs {
		key := pair{id, userID}
		if _, ok := s.reads[key]; ok {
			continue
		}
		s.reads[key] = at
		inserted++
	}
	return inserted, nil
}

func (s *Store) ReadersOf(ctx context.Context, messageIDs []int) (map[int][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int][]int)
	for _, id := range messageIDs {
		for key := range s.reads {
			if key.a == id {
				out[id] = append(out[id], key.b)
			}
		}
		sort.Ints(out[id])
	}
	return out, nil
}

func (s *Store) ReactionsOf(ctx context.Context, messageIDs []int) (map[int][]models.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[int]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	out := make(map[int][]models.Reaction)
	for key, at := range s.reactions {
		if wanted[key.messageID] {
			out[key.messageID] = append(out[key.messageID], models.Reaction{MessageID: key.messageID, UserID: key.userID, Emoji: key.emoji, CreatedAt: at})
		}
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.Before(list[j].CreatedAt)
			}
			if list[i].UserID != list[j].UserID {
				return list[i].UserID < list[j].UserID
			}
			return list[i].Emoji < list[j].Emoji
		})
	}
	return out, nil
}

func (s *Store) SoftDelete(ctx context.Context, messageID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	if m.DeletedAt == nil {
		m.DeletedAt = &at
		s.messages[messageID] = m
	}
	return nil
}

func (s *Store) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey{messageID, userID, emoji}
	if _, ok := s.reactions[key]; ok {
		delete(s.reactions, key)
		return false, nil
	}
	s.reactions[key] = at
	return true, nil
}

// presence

func (s *Store) UpsertTyping(ctx context.Context, conversationID int, userID int, expiresAt time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing[pair{conversationID, userID}] = expiresAt
	for key, exp := range s.typing {
		if key.a == conversationID && !exp.After(now) {
			delete(s.typing, key)
		}
	}
	return nil
}

func (s *Store) ListTyping(ctx context.Context, conversationID int, now time.Time) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []int{}
	for key, exp := range s.typing {
		if key.a == conversationID && exp.After(now) {
			ids = append(ids, key.b)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, userID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	u.LastSeenAt = &at
	s.users[userID] = u
	return nil
}

// admits must be called with mu held.
func (s *Store) admits(f visibility.Filter, m models.Message) bool {
	_, hidden := s.msgHides[pair{m.ID, f.ReaderID}]
	return f.Admits(m, hidden)
}

// later orders messages by (created_at, id).
func later(x, y models.Message) bool {
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	return x.ID > y.ID
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]int(nil), c.Participants...)
	return c
}
