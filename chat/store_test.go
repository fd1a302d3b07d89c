package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAppendIsIdempotent(t *testing.T) {
	s := NewStore()

	require.True(t, s.Append(Message{ID: "m1", Role: RoleUser}))
	require.False(t, s.Append(Message{ID: "m1", Role: RoleAssistant}))

	assert.Equal(t, 1, s.Len())
	m, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, RoleUser, m.Role)
}

func TestStoreUpsertPartReplacesInPlace(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant})

	s.UpsertPart("m1", Part{ID: "p1", Type: PartText, Content: "Hi"})
	s.UpsertPart("m1", Part{ID: "p2", Type: PartText, Content: "second"})
	s.UpsertPart("m1", Part{ID: "p1", Type: PartText, Content: "Hi there"})

	m, ok := s.Get("m1")
	require.True(t, ok)
	require.Len(t, m.Parts, 2)
	assert.Equal(t, "Hi there", m.Parts[0].Content, "replacement keeps the part's position")
	assert.Equal(t, "Hi there\nsecond", m.Content)
}

func TestStoreUpsertPartDistinctTypesCoexist(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant})

	s.UpsertPart("m1", Part{ID: "p1", Type: PartText, Content: "answer"})
	s.UpsertPart("m1", Part{ID: "p1", Type: PartReasoning, Content: "thinking"})

	m, _ := s.Get("m1")
	require.Len(t, m.Parts, 2)
	assert.Equal(t, "answer", m.Content, "reasoning parts do not join into content")
}

func TestStoreToolPartTransitionsInPlace(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant})

	s.UpsertPart("m1", Part{ID: "t1", Type: PartToolInvocation, ToolName: "bash", ToolStatus: "running"})
	s.UpsertPart("m1", Part{ID: "t1", Type: PartToolResult, ToolName: "bash", ToolStatus: "completed", ToolOutput: "ok"})

	m, _ := s.Get("m1")
	require.Len(t, m.Parts, 1, "invocation and result share one slot")
	assert.Equal(t, PartToolResult, m.Parts[0].Type)
	assert.Equal(t, "ok", m.Parts[0].ToolOutput)
}

func TestStoreContentJoinsTextPartsInFirstSeenOrder(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant})

	s.UpsertPart("m1", Part{ID: "a", Type: PartText, Content: "one"})
	s.UpsertPart("m1", Part{ID: "t", Type: PartToolInvocation, ToolName: "grep"})
	s.UpsertPart("m1", Part{ID: "b", Type: PartText, Content: "two"})

	m, _ := s.Get("m1")
	assert.Equal(t, "one\ntwo", m.Content)
}

func TestStoreMutationsOnMissingIDsAreNoOps(t *testing.T) {
	s := NewStore()

	s.UpsertPart("ghost", Part{ID: "p", Type: PartText, Content: "x"})
	s.SetStatus("ghost", StatusComplete)
	s.Patch("ghost", func(m *Message) { m.Content = "x" })
	s.TruncateAfter("ghost")

	assert.Equal(t, 0, s.Len())
}

func TestStoreTruncateAfter(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "u1", Role: RoleUser})
	s.Append(Message{ID: "a1", Role: RoleAssistant})
	s.Append(Message{ID: "u2", Role: RoleUser})
	s.Append(Message{ID: "a2", Role: RoleAssistant})

	s.TruncateAfter("u2")

	require.Equal(t, 2, s.Len())
	assert.False(t, s.Has("a2"))
	assert.True(t, s.Has("u2"))

	// Truncated ids can be appended again.
	assert.True(t, s.Append(Message{ID: "a2", Role: RoleAssistant}))
}

func TestStorePatchAppliesUnderLockAndRecomputes(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant, Status: StatusStreaming, Parts: []Part{
		{ID: "p1", Type: PartText, Content: "draft"},
	}})

	s.Patch("m1", func(m *Message) {
		m.Status = StatusComplete
		m.Parts[0].Content = "final"
	})

	m, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, StatusComplete, m.Status)
	assert.Equal(t, "final", m.Content, "flattened content tracks the patched part")
}

func TestStoreReplaceAll(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "old", Role: RoleUser})

	s.ReplaceAll([]Message{
		{ID: "m1", Role: RoleUser, Parts: []Part{{ID: "p", Type: PartText, Content: "hi"}}},
		{ID: "m2", Role: RoleAssistant},
	})

	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Has("old"))
	m, _ := s.Get("m1")
	assert.Equal(t, "hi", m.Content, "content recomputed on load")
}

func TestStoreLastUserMessage(t *testing.T) {
	s := NewStore()
	_, ok := s.LastUserMessage()
	require.False(t, ok)

	s.Append(Message{ID: "u1", Role: RoleUser})
	s.Append(Message{ID: "a1", Role: RoleAssistant})

	last, ok := s.LastUserMessage()
	require.True(t, ok)
	assert.Equal(t, "u1", last.ID)
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Append(Message{ID: "m1", Role: RoleAssistant})
	s.UpsertPart("m1", Part{ID: "p1", Type: PartText, Content: "original"})

	snap := s.Messages()
	snap[0].Parts[0].Content = "mutated"

	m, _ := s.Get("m1")
	assert.Equal(t, "original", m.Parts[0].Content)
}
