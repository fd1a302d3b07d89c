package chat

import (
	"strings"
	"sync"
)

// Store is the authoritative, append-ordered collection of messages for the
// current session. Mutations are total: operations on missing ids are
// no-ops rather than errors, because stream events may reference messages
// the client has not materialized yet. A single writer (the reconciler and
// turn controller) mutates; readers get snapshot copies.
type Store struct {
	mu       sync.RWMutex
	messages []*Message
	index    map[string]*Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]*Message)}
}

// ReplaceAll resets the store to the given transcript. Used on session
// switch and history reload.
func (s *Store) ReplaceAll(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = s.messages[:0]
	s.index = make(map[string]*Message, len(messages))
	for i := range messages {
		m := messages[i]
		if _, exists := s.index[m.ID]; exists {
			continue
		}
		recomputeContent(&m)
		copied := m
		s.messages = append(s.messages, &copied)
		s.index[m.ID] = &copied
	}
}

// Append adds a message at the end. Idempotent: appending an id already
// present is a no-op and returns false.
func (s *Store) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[m.ID]; exists {
		return false
	}
	recomputeContent(&m)
	copied := m
	s.messages = append(s.messages, &copied)
	s.index[m.ID] = &copied
	return true
}

// UpsertPart replaces or appends a part on the message with the given id.
// The message must already exist; part updates for unknown messages are
// dropped (callers append a stub first when the race matters). Text and
// reasoning parts are keyed by (type, id); tool parts by id alone, so an
// invocation and its result occupy one slot. The message's flattened
// content is recomputed afterward.
func (s *Store) UpsertPart(messageID string, part Part) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.index[messageID]
	if !ok {
		return
	}

	replaced := false
	for i := range m.Parts {
		if m.Parts[i].ID != part.ID {
			continue
		}
		if m.Parts[i].Type == part.Type || (m.Parts[i].isTool() && part.isTool()) {
			m.Parts[i] = part
			replaced = true
			break
		}
	}
	if !replaced {
		m.Parts = append(m.Parts, part)
	}
	recomputeContent(m)
}

// SetStatus updates a message's status. No-op for unknown ids.
func (s *Store) SetStatus(messageID string, status MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.index[messageID]; ok {
		m.Status = status
	}
}

// Patch applies fn to the message with the given id under the store lock
// and recomputes its flattened content. No-op for unknown ids.
func (s *Store) Patch(messageID string, fn func(*Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.index[messageID]; ok {
		fn(m)
		recomputeContent(m)
	}
}

// TruncateAfter discards every message after the one with the given id,
// keeping it as the new tail. No-op for unknown ids.
func (s *Store) TruncateAfter(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID != messageID {
			continue
		}
		for _, dropped := range s.messages[i+1:] {
			delete(s.index, dropped.ID)
		}
		s.messages = s.messages[:i+1]
		return
	}
}

// Has reports whether a message with the given id exists.
func (s *Store) Has(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[messageID]
	return ok
}

// Get returns a snapshot copy of one message.
func (s *Store) Get(messageID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.index[messageID]
	if !ok {
		return Message{}, false
	}
	return snapshot(m), true
}

// Messages returns a snapshot copy of the transcript in append order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = snapshot(m)
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastUserMessage returns a snapshot of the most recent user message.
func (s *Store) LastUserMessage() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return snapshot(s.messages[i]), true
		}
	}
	return Message{}, false
}

func snapshot(m *Message) Message {
	out := *m
	out.Parts = make([]Part, len(m.Parts))
	copy(out.Parts, m.Parts)
	return out
}

// recomputeContent flattens the message's text parts, newline-joined in
// first-seen order.
func recomputeContent(m *Message) {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Content)
		}
	}
	m.Content = strings.Join(texts, "\n")
}
