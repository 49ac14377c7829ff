package visibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dm-service/internal/models"
)

func TestStateOf(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, VisibleFull, StateOf(nil))
	assert.Equal(t, Hidden, StateOf(&models.ConversationHide{HiddenAt: now}))
	assert.Equal(t, VisibleWindowed, StateOf(&models.ConversationHide{HiddenAt: now, VisibleFrom: &now}))
	assert.Equal(t, "visible_windowed", VisibleWindowed.String())
}

func TestFilterAdmits(t *testing.T) {
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	windowed := ForReader(1, &models.ConversationHide{VisibleFrom: &from})
	full := ForReader(1, nil)
	hidden := ForReader(1, &models.ConversationHide{HiddenAt: from})

	before := models.Message{CreatedAt: from.Add(-time.Second)}
	at := models.Message{CreatedAt: from}
	after := models.Message{CreatedAt: from.Add(time.Second)}

	assert.False(t, windowed.Admits(before, false))
	assert.True(t, windowed.Admits(at, false))
	assert.True(t, windowed.Admits(after, false))
	assert.False(t, windowed.Admits(after, true))

	assert.True(t, full.Admits(before, false))
	assert.True(t, hidden.Admits(before, false))
	assert.Nil(t, hidden.From)
}

func TestForReaderCopiesWindow(t *testing.T) {
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := &models.ConversationHide{VisibleFrom: &from}
	f := ForReader(3, h)

	*h.VisibleFrom = from.Add(time.Hour)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), *f.From)
	assert.Equal(t, 3, f.ReaderID)
}

func TestPredicate(t *testing.T) {
	got := Predicate("m", "$2", "$3::timestamptz")
	assert.Contains(t, got, "mh.message_id = m.id AND mh.user_id = $2")
	assert.Contains(t, got, "($3::timestamptz IS NULL OR m.created_at >= $3::timestamptz)")
}
