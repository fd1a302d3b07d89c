package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskcode/opencode"
)

func wireHistory(entries ...opencode.MessageWithParts) []opencode.MessageWithParts {
	return entries
}

func historyEntry(id, role, text string) opencode.MessageWithParts {
	return opencode.MessageWithParts{
		Info: opencode.MessageInfo{ID: id, Role: role},
		Parts: []opencode.Part{
			{ID: id + "_p", MessageID: id, Type: opencode.PartTypeText, Text: text},
		},
	}
}

func TestCreateSelectsAndClearsTranscript(t *testing.T) {
	conv, _ := newTestConversation(t)

	// Leftover transcript from a previous thread.
	conv.Apply(assistantCreated("old"))
	conv.Apply(textPart("old", "p1", "leftovers"))
	require.Equal(t, 1, conv.Store().Len())

	session, err := conv.Sessions().Create(context.Background(), "fresh start")
	require.NoError(t, err)

	current, ok := conv.Sessions().Current()
	require.True(t, ok)
	assert.Equal(t, session.ID, current.ID)
	assert.Equal(t, 0, conv.Store().Len())
	assert.Empty(t, conv.LastError())
}

func TestSwitchToPendingSessionSkipsReload(t *testing.T) {
	conv, fake := newTestConversation(t)

	session, err := conv.Sessions().Create(context.Background(), "")
	require.NoError(t, err)

	// Optimistic local state for the brand-new session.
	require.NoError(t, conv.Turns().SendMessage(context.Background(), "first words"))
	require.Equal(t, 1, conv.Store().Len())

	require.NoError(t, conv.Sessions().SwitchTo(context.Background(), session.ID))

	assert.Empty(t, fake.historyReloads(), "pending session has nothing indexed server-side")
	messages := conv.Store().Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "first words", messages[0].Content)
}

func TestSwitchToLoadsHistory(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.sessions["ses_a"] = opencode.Session{ID: "ses_a", Title: "older thread"}
	fake.history["ses_a"] = wireHistory(
		historyEntry("u1", "user", "what is this repo?"),
		historyEntry("a1", "assistant", "a chat client"),
	)
	require.NoError(t, conv.Sessions().Refresh(context.Background()))

	require.NoError(t, conv.Sessions().SwitchTo(context.Background(), "ses_a"))

	assert.Equal(t, []string{"ses_a"}, fake.historyReloads())
	messages := conv.Store().Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "what is this repo?", messages[0].Content)
	assert.Equal(t, StatusComplete, messages[1].Status)

	// Replayed part deltas for a historical user message stay suppressed.
	conv.Apply(textPart("u1", "u1_p", "echo"))
	messages = conv.Store().Messages()
	assert.Equal(t, "what is this repo?", messages[0].Content)
}

func TestSwitchAwayFromPendingReloadsNormally(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.sessions["ses_a"] = opencode.Session{ID: "ses_a"}
	fake.history["ses_a"] = wireHistory(historyEntry("u1", "user", "hello"))

	_, err := conv.Sessions().Create(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, conv.Sessions().SwitchTo(context.Background(), "ses_a"))
	assert.Equal(t, []string{"ses_a"}, fake.historyReloads())
	assert.Equal(t, 1, conv.Store().Len())
}

func TestSwitchToHistoryFailureKeepsSelection(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.histErr = errors.New("history fetch failed")

	err := conv.Sessions().SwitchTo(context.Background(), "ses_a")
	require.Error(t, err)

	id, ok := conv.Sessions().CurrentID()
	require.True(t, ok)
	assert.Equal(t, "ses_a", id)
}

func TestSwitchToEmptyID(t *testing.T) {
	conv, _ := newTestConversation(t)
	assert.ErrorIs(t, conv.Sessions().SwitchTo(context.Background(), ""), ErrNoSession)
}

func TestRefreshReplacesDirectory(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.sessions["ses_a"] = opencode.Session{ID: "ses_a", Title: "one"}
	fake.sessions["ses_b"] = opencode.Session{ID: "ses_b", Title: "two"}

	require.NoError(t, conv.Sessions().Refresh(context.Background()))
	assert.Len(t, conv.Sessions().List(), 2)

	delete(fake.sessions, "ses_b")
	require.NoError(t, conv.Sessions().Refresh(context.Background()))
	list := conv.Sessions().List()
	require.Len(t, list, 1)
	assert.Equal(t, "ses_a", list[0].ID)
}

func TestDeleteCurrentSelectsMostRecent(t *testing.T) {
	conv, _ := newTestConversation(t)

	now := time.Now().UnixMilli()
	conv.Apply(opencode.SessionUpdatedEvent{
		Tag:  opencode.EventTypeSessionCreated,
		Info: opencode.Session{ID: "ses_old", Time: opencode.SessionTime{Updated: now - 10_000}},
	})
	conv.Apply(opencode.SessionUpdatedEvent{
		Tag:  opencode.EventTypeSessionCreated,
		Info: opencode.Session{ID: "ses_new", Time: opencode.SessionTime{Updated: now}},
	})
	require.NoError(t, conv.Sessions().SwitchTo(context.Background(), "ses_old"))

	require.NoError(t, conv.Sessions().Delete(context.Background(), "ses_old"))

	id, ok := conv.Sessions().CurrentID()
	require.True(t, ok)
	assert.Equal(t, "ses_new", id)
	assert.Len(t, conv.Sessions().List(), 1)
}

func TestDeleteLastSessionClearsEverything(t *testing.T) {
	conv, _ := newTestConversation(t)
	session, err := conv.Sessions().Create(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, conv.Turns().SendMessage(context.Background(), "hi"))

	require.NoError(t, conv.Sessions().Delete(context.Background(), session.ID))

	_, ok := conv.Sessions().CurrentID()
	assert.False(t, ok)
	assert.Equal(t, 0, conv.Store().Len())
	assert.False(t, conv.Loading())
}

func TestDeleteNonCurrentLeavesSelection(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.sessions["ses_a"] = opencode.Session{ID: "ses_a"}
	fake.sessions["ses_b"] = opencode.Session{ID: "ses_b"}
	require.NoError(t, conv.Sessions().Refresh(context.Background()))
	require.NoError(t, conv.Sessions().SwitchTo(context.Background(), "ses_a"))

	require.NoError(t, conv.Sessions().Delete(context.Background(), "ses_b"))

	id, _ := conv.Sessions().CurrentID()
	assert.Equal(t, "ses_a", id)
}

func TestDeleteServerFailureKeepsSession(t *testing.T) {
	conv, fake := newTestConversation(t)
	fake.sessions["ses_a"] = opencode.Session{ID: "ses_a"}
	require.NoError(t, conv.Sessions().Refresh(context.Background()))

	fake.deleteErr = errors.New("server rejected delete")
	require.Error(t, conv.Sessions().Delete(context.Background(), "ses_a"))
	assert.Len(t, conv.Sessions().List(), 1)
}

func TestUpsertPreservesTitleOnBlankUpdate(t *testing.T) {
	conv, _ := newTestConversation(t)

	conv.Apply(opencode.SessionUpdatedEvent{
		Tag:  opencode.EventTypeSessionCreated,
		Info: opencode.Session{ID: "ses_a", Title: "named"},
	})
	conv.Apply(opencode.SessionUpdatedEvent{
		Tag:  opencode.EventTypeSessionUpdated,
		Info: opencode.Session{ID: "ses_a"},
	})

	list := conv.Sessions().List()
	require.Len(t, list, 1)
	assert.Equal(t, "named", list[0].Title)
}

func TestSortByRecent(t *testing.T) {
	conv, _ := newTestConversation(t)

	now := time.Now().UnixMilli()
	for _, s := range []opencode.Session{
		{ID: "ses_old", Time: opencode.SessionTime{Updated: now - 60_000}},
		{ID: "ses_new", Time: opencode.SessionTime{Updated: now}},
		{ID: "ses_mid", Time: opencode.SessionTime{Updated: now - 30_000}},
	} {
		conv.Apply(opencode.SessionUpdatedEvent{Tag: opencode.EventTypeSessionCreated, Info: s})
	}

	conv.Sessions().SortByRecent()

	list := conv.Sessions().List()
	require.Len(t, list, 3)
	assert.Equal(t, "ses_new", list[0].ID)
	assert.Equal(t, "ses_mid", list[1].ID)
	assert.Equal(t, "ses_old", list[2].ID)
}
