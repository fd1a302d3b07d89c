package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"deskcode/opencode"
)

// ErrNoSession indicates an operation that requires a selected session.
var ErrNoSession = errors.New("no active session")

// SessionDirectory maintains the list of conversation sessions and keeps it
// consistent with server-originated session events. Inbound events only
// ever upsert; sessions are removed solely by an explicit, server-confirmed
// Delete.
type SessionDirectory struct {
	mu       sync.RWMutex
	sessions []Session
	current  string

	agent  Agent
	store  *Store
	ts     *turnState
	logger *slog.Logger
	notify func()
}

func newSessionDirectory(agent Agent, store *Store, ts *turnState, logger *slog.Logger, notify func()) *SessionDirectory {
	return &SessionDirectory{
		agent:  agent,
		store:  store,
		ts:     ts,
		logger: logger,
		notify: notify,
	}
}

// List returns the sessions in their current order: server list order until
// SortByRecent re-sorts.
func (d *SessionDirectory) List() []Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// SortByRecent re-orders the directory most-recently-updated first.
func (d *SessionDirectory) SortByRecent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	sort.SliceStable(d.sessions, func(i, j int) bool {
		return d.sessions[i].UpdatedAt.After(d.sessions[j].UpdatedAt)
	})
}

// Current returns the selected session.
func (d *SessionDirectory) Current() (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == "" {
		return Session{}, false
	}
	for _, s := range d.sessions {
		if s.ID == d.current {
			return s, true
		}
	}
	return Session{ID: d.current}, true
}

// CurrentID returns the selected session's id.
func (d *SessionDirectory) CurrentID() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.current != ""
}

// Refresh replaces the directory with the server's session list, keeping
// the server's order and the current selection.
func (d *SessionDirectory) Refresh(ctx context.Context) error {
	listed, err := d.agent.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	d.mu.Lock()
	d.sessions = d.sessions[:0]
	for _, s := range listed {
		d.sessions = append(d.sessions, sessionFromWire(s))
	}
	d.mu.Unlock()
	d.notify()
	return nil
}

// Create asks the server for a new session, marks it pending (its history
// is not indexed server-side yet), clears the per-session turn bookkeeping,
// and selects it. The message store is emptied for the fresh thread.
func (d *SessionDirectory) Create(ctx context.Context, title string) (Session, error) {
	created, err := d.agent.CreateSession(ctx, title)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	session := sessionFromWire(created)
	d.upsert(created)

	d.ts.resetSession()
	d.ts.setPendingSession(session.ID)

	d.mu.Lock()
	d.current = session.ID
	d.mu.Unlock()

	d.store.ReplaceAll(nil)
	d.notify()
	return session, nil
}

// SwitchTo selects a session and reloads its history, clearing all
// ephemeral turn bookkeeping. Switching to the pending session skips the
// reload: the server has nothing indexed for it yet and a reload would
// clobber the optimistic local state.
func (d *SessionDirectory) SwitchTo(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	pending := d.ts.pending()

	d.mu.Lock()
	d.current = sessionID
	d.mu.Unlock()

	if sessionID == pending {
		d.notify()
		return nil
	}

	d.ts.resetSession()

	history, err := d.agent.Messages(ctx, sessionID)
	if err != nil {
		d.notify()
		return fmt.Errorf("load history: %w", err)
	}
	d.store.ReplaceAll(historyFromWire(history, d.ts))
	d.notify()
	return nil
}

// Delete removes a session on the server, then locally. If the deleted
// session was current, the most recently updated remaining session is
// selected; with none remaining the selection and transcript are cleared.
func (d *SessionDirectory) Delete(ctx context.Context, sessionID string) error {
	if err := d.agent.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	d.mu.Lock()
	kept := d.sessions[:0]
	for _, s := range d.sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	d.sessions = kept
	wasCurrent := d.current == sessionID
	var next string
	if wasCurrent {
		d.current = ""
		var latest time.Time
		for _, s := range d.sessions {
			if next == "" || s.UpdatedAt.After(latest) {
				next = s.ID
				latest = s.UpdatedAt
			}
		}
	}
	d.mu.Unlock()

	if !wasCurrent {
		d.notify()
		return nil
	}

	d.ts.resetSession()
	if next == "" {
		d.store.ReplaceAll(nil)
		d.notify()
		return nil
	}
	if err := d.SwitchTo(ctx, next); err != nil {
		d.logger.Warn("switch after delete failed", "session", next, "error", err)
	}
	return nil
}

// upsert folds a server-originated session record into the directory by id.
func (d *SessionDirectory) upsert(info opencode.Session) {
	if info.ID == "" {
		return
	}
	session := sessionFromWire(info)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.sessions {
		if d.sessions[i].ID != session.ID {
			continue
		}
		if session.Title == "" {
			session.Title = d.sessions[i].Title
		}
		session.MessageCount = d.sessions[i].MessageCount
		d.sessions[i] = session
		return
	}
	d.sessions = append(d.sessions, session)
}

func sessionFromWire(s opencode.Session) Session {
	return Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: time.UnixMilli(s.Time.Created),
		UpdatedAt: time.UnixMilli(s.Time.Updated),
	}
}

// historyFromWire converts a history fetch into the local transcript form,
// recording user message ids so later part deltas for them stay
// suppressed.
func historyFromWire(history []opencode.MessageWithParts, ts *turnState) []Message {
	out := make([]Message, 0, len(history))
	for _, entry := range history {
		role := RoleAssistant
		if entry.Info.Role == "user" {
			role = RoleUser
			ts.markUser(entry.Info.ID)
		}

		m := Message{
			ID:        entry.Info.ID,
			Role:      role,
			Status:    StatusComplete,
			Timestamp: messageTime(entry.Info),
		}
		for _, wp := range entry.Parts {
			if part, ok := partFromWire(wp); ok {
				m.Parts = append(m.Parts, part)
			}
		}
		out = append(out, m)
	}
	return out
}
