package chat

import (
	"context"
	"fmt"
	"sync"

	"deskcode/opencode"
)

// fakeAgent is a scriptable Agent for tests. It records calls and returns
// canned responses or errors.
type fakeAgent struct {
	mu sync.Mutex

	sessions map[string]opencode.Session
	history  map[string][]opencode.MessageWithParts

	createErr error
	deleteErr error
	listErr   error
	histErr   error
	promptErr error
	abortErr  error

	nextSession  int
	historyCalls []string
	prompts      []sentPrompt
	aborts       []string
	deletes      []string
}

type sentPrompt struct {
	sessionID string
	req       opencode.PromptRequest
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		sessions: make(map[string]opencode.Session),
		history:  make(map[string][]opencode.MessageWithParts),
	}
}

func (f *fakeAgent) CreateSession(ctx context.Context, title string) (opencode.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return opencode.Session{}, f.createErr
	}
	f.nextSession++
	s := opencode.Session{ID: fmt.Sprintf("ses_%d", f.nextSession), Title: title}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeAgent) ListSessions(ctx context.Context) ([]opencode.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]opencode.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAgent) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, sessionID)
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeAgent) Messages(ctx context.Context, sessionID string) ([]opencode.MessageWithParts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histErr != nil {
		return nil, f.histErr
	}
	f.historyCalls = append(f.historyCalls, sessionID)
	return f.history[sessionID], nil
}

func (f *fakeAgent) SendPrompt(ctx context.Context, sessionID string, req opencode.PromptRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptErr != nil {
		return f.promptErr
	}
	f.prompts = append(f.prompts, sentPrompt{sessionID: sessionID, req: req})
	return nil
}

func (f *fakeAgent) Abort(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abortErr != nil {
		return f.abortErr
	}
	f.aborts = append(f.aborts, sessionID)
	return nil
}

func (f *fakeAgent) sentPrompts() []sentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentPrompt, len(f.prompts))
	copy(out, f.prompts)
	return out
}

func (f *fakeAgent) sentAborts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.aborts))
	copy(out, f.aborts)
	return out
}

func (f *fakeAgent) historyReloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.historyCalls))
	copy(out, f.historyCalls)
	return out
}

var _ Agent = (*fakeAgent)(nil)
