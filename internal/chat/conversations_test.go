package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/apperrors"
	"dm-service/internal/visibility"
)

func TestHiddenConversationReappearsWindowedOnNewMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	f.send(t, bob, conv.ID, "old 1")
	f.send(t, bob, conv.ID, "old 2")

	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	assert.Empty(t, f.summaries(t, alice))

	fresh := f.send(t, bob, conv.ID, "fresh")

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, hide.VisibleFrom)
	assert.True(t, hide.VisibleFrom.Equal(fresh.CreatedAt))
	assert.Equal(t, visibility.VisibleWindowed, visibility.StateOf(hide))

	list := f.summaries(t, alice)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, fresh.ID, list[0].LastMessage.ID)
	assert.Equal(t, 1, list[0].UnreadCount)
}

func TestRehidingAfterRestartHidesFully(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	f.send(t, bob, conv.ID, "ping")
	require.Len(t, f.summaries(t, alice), 1)

	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	assert.Nil(t, hide.VisibleFrom)
	assert.True(t, hide.HiddenAt.Equal(f.clock.Now()))
	assert.Empty(t, f.summaries(t, alice))
}

func TestWindowIsNotMovedByLaterMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	first := f.send(t, bob, conv.ID, "one")
	f.send(t, bob, conv.ID, "two")

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	assert.True(t, hide.VisibleFrom.Equal(first.CreatedAt))
	assert.Len(t, f.history(t, alice, conv.ID), 2)
}

func TestSenderOwnHiddenCopyReappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	f.send(t, alice, conv.ID, "before")
	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	mine := f.send(t, alice, conv.ID, "after")

	list := f.summaries(t, alice)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].LastMessage.ID)
	assert.Equal(t, 0, list[0].UnreadCount)
	assert.Equal(t, []int{mine.ID}, ids(f.history(t, alice, conv.ID)))
}

func TestHideScenarioBetweenTwoUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	for i, sender := range []int{alice, bob, alice, bob, alice} {
		f.send(t, sender, conv.ID, string(rune('a'+i)))
	}

	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	assert.Empty(t, f.summaries(t, alice))

	bobList := f.summaries(t, bob)
	require.Len(t, bobList, 1)
	assert.Equal(t, 3, bobList[0].UnreadCount)
	assert.Len(t, f.history(t, bob, conv.ID), 5)
	assert.Equal(t, 0, f.summaries(t, bob)[0].UnreadCount)

	sixth := f.send(t, bob, conv.ID, "six")

	aliceList := f.summaries(t, alice)
	require.Len(t, aliceList, 1)
	require.NotNil(t, aliceList[0].LastMessage)
	assert.Equal(t, sixth.ID, aliceList[0].LastMessage.ID)
	assert.Equal(t, 1, aliceList[0].UnreadCount)
	assert.Equal(t, []int{sixth.ID}, ids(f.history(t, alice, conv.ID)))
	assert.Len(t, f.history(t, bob, conv.ID), 6)
}

func TestReopenDirectResetsWindowToNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)
	f.send(t, bob, conv.ID, "one")
	f.send(t, alice, conv.ID, "two")

	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	f.clock.Advance(time.Minute)

	reopened, err := f.svc.OpenDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, reopened.ID)

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, hide.VisibleFrom)
	assert.True(t, hide.VisibleFrom.Equal(f.clock.Now()))

	assert.Empty(t, f.history(t, alice, conv.ID))
	assert.Len(t, f.history(t, bob, conv.ID), 2)

	list := f.summaries(t, alice)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastMessage)
	assert.Equal(t, 0, list[0].UnreadCount)
}

func TestReopenDirectNarrowsExistingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	require.NoError(t, f.svc.HideConversation(ctx, alice, conv.ID))
	f.send(t, bob, conv.ID, "restart")
	f.clock.Advance(time.Hour)

	_, err := f.svc.OpenDirect(ctx, alice, bob)
	require.NoError(t, err)

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	assert.True(t, hide.VisibleFrom.Equal(f.clock.Now()))
	assert.Empty(t, f.history(t, alice, conv.ID))
}

func TestOpenDirectWithoutHideKeepsFullHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)
	f.send(t, bob, conv.ID, "hello")

	again, err := f.svc.OpenDirect(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	hide, err := f.store.GetHide(ctx, conv.ID, alice)
	require.NoError(t, err)
	assert.Nil(t, hide)
	assert.Len(t, f.history(t, alice, conv.ID), 1)
}

func TestOpenDirectValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")

	_, err := f.svc.OpenDirect(ctx, alice, alice)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOperation)

	_, err = f.svc.OpenDirect(ctx, alice, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	conv, err := f.svc.CreateGroup(ctx, alice, " friends ", []int{bob, carol, bob, alice})
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
	require.NotNil(t, conv.Name)
	assert.Equal(t, "friends", *conv.Name)
	assert.Equal(t, []int{alice, bob, carol}, conv.Participants)

	_, err = f.svc.CreateGroup(ctx, alice, "solo", []int{alice})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOperation)

	_, err = f.svc.CreateGroup(ctx, alice, "", []int{bob})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOperation)

	_, err = f.svc.CreateGroup(ctx, alice, "ghosts", []int{bob, 404})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGroupHideOnlyAffectsHider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	conv, err := f.svc.CreateGroup(ctx, alice, "team", []int{bob, carol})
	require.NoError(t, err)

	f.send(t, alice, conv.ID, "kickoff")
	require.NoError(t, f.svc.HideConversation(ctx, carol, conv.ID))

	assert.Empty(t, f.summaries(t, carol))
	assert.Len(t, f.summaries(t, bob), 1)

	reply := f.send(t, bob, conv.ID, "reply")
	assert.Equal(t, []int{reply.ID}, ids(f.history(t, carol, conv.ID)))
	assert.Len(t, f.history(t, alice, conv.ID), 2)
}

func TestHideConversationRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
	conv := f.direct(t, alice, bob)

	assert.ErrorIs(t, f.svc.HideConversation(ctx, eve, conv.ID), apperrors.ErrNotAuthorized)
	assert.ErrorIs(t, f.svc.HideConversation(ctx, alice, 12345), apperrors.ErrNotFound)
}

func TestListConversationsOrdering(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol, dave := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol"), f.user(t, "dave")

	// Created at the same instant with no messages: tie broken by id, newest first.
	withBob := f.direct(t, alice, bob)
	withCarol := f.direct(t, alice, carol)
	f.clock.Advance(time.Second)
	withDave := f.direct(t, alice, dave)

	list := f.summaries(t, alice)
	require.Len(t, list, 3)
	assert.Equal(t, []int{withDave.ID, withCarol.ID, withBob.ID}, []int{list[0].ID, list[1].ID, list[2].ID})

	f.send(t, bob, withBob.ID, "latest activity")
	list = f.summaries(t, alice)
	assert.Equal(t, []int{withBob.ID, withDave.ID, withCarol.ID}, []int{list[0].ID, list[1].ID, list[2].ID})
}

func TestWindowedConversationWithoutPreviewSortsByCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	withBob := f.direct(t, alice, bob)
	f.clock.Advance(time.Second)
	withCarol := f.direct(t, alice, carol)

	f.send(t, bob, withBob.ID, "old but recent")
	f.send(t, carol, withCarol.ID, "older")
	f.send(t, bob, withBob.ID, "newest")

	require.NoError(t, f.svc.HideConversation(ctx, alice, withBob.ID))
	f.clock.Advance(time.Second)
	_, err := f.svc.OpenDirect(ctx, alice, bob)
	require.NoError(t, err)

	list := f.summaries(t, alice)
	require.Len(t, list, 2)
	assert.Equal(t, withCarol.ID, list[0].ID)
	assert.Equal(t, withBob.ID, list[1].ID)
	assert.Nil(t, list[1].LastMessage)
}

func TestPreviewSkipsDeletedAndHiddenMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	conv := f.direct(t, alice, bob)

	first := f.send(t, bob, conv.ID, "first")
	second := f.send(t, bob, conv.ID, "second")
	third := f.send(t, bob, conv.ID, "third")

	require.NoError(t, f.svc.DeleteMessage(ctx, bob, third.ID))
	list := f.summaries(t, alice)
	assert.Equal(t, second.ID, list[0].LastMessage.ID)
	assert.Equal(t, 2, list[0].UnreadCount)

	require.NoError(t, f.svc.HideMessage(ctx, alice, second.ID))
	list = f.summaries(t, alice)
	assert.Equal(t, first.ID, list[0].LastMessage.ID)
	assert.Equal(t, 1, list[0].UnreadCount)

	bobList := f.summaries(t, bob)
	assert.Equal(t, second.ID, bobList[0].LastMessage.ID)
}
