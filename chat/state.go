package chat

import (
	"sync"
	"time"
)

// turnState is the ephemeral bookkeeping for the in-flight turn. It is
// shared by the reconciler, turn controller, and session directory, and is
// reset on session switches. None of it is persisted.
type turnState struct {
	mu sync.Mutex

	// activeAssistant is the message currently receiving streamed parts;
	// empty when no turn is streaming.
	activeAssistant string

	// knownUser holds ids of user-originated messages for the current
	// session, so their part deltas are never rendered as assistant
	// content.
	knownUser map[string]struct{}

	// pendingSession is a session created by this client whose history the
	// server has not indexed yet; switching to it must not trigger a
	// history reload.
	pendingSession string

	loading bool
	lastErr string

	// gen invalidates stale watchdog callbacks: it advances on every arm
	// and on every turn-ending transition, and a fired timer may only
	// expire the turn whose generation it was armed for.
	gen      uint64
	watchdog *time.Timer
}

func newTurnState() *turnState {
	return &turnState{knownUser: make(map[string]struct{})}
}

func (t *turnState) setActive(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeAssistant = id
}

func (t *turnState) active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeAssistant
}

func (t *turnState) markUser(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.knownUser[id] = struct{}{}
}

func (t *turnState) isUser(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.knownUser[id]
	return ok
}

func (t *turnState) setPendingSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingSession = id
}

func (t *turnState) pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSession
}

func (t *turnState) setLoading(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = v
}

func (t *turnState) isLoading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

func (t *turnState) setErr(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = msg
}

func (t *turnState) err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// finishTurn performs the terminal cleanup shared by every turn-ending
// path: it returns the active assistant id (for status marking by the
// caller), clears the active and pending trackers, and drops loading.
func (t *turnState) finishTurn() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishTurnLocked()
}

func (t *turnState) finishTurnLocked() string {
	active := t.activeAssistant
	t.activeAssistant = ""
	t.pendingSession = ""
	t.loading = false
	t.gen++
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
	return active
}

// expireTurn is finishTurn for watchdog callbacks: the turn ends only if
// gen still identifies the turn the timer was armed for and a turn is in
// flight. A stale timer that fired just before being replaced returns
// false and changes nothing.
func (t *turnState) expireTurn(gen uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.loading {
		return "", false
	}
	return t.finishTurnLocked(), true
}

// resetSession clears everything tied to the previous session: active
// message, known user ids, pending session, loading, and watchdog. The
// error slot is cleared too; a new session starts clean.
func (t *turnState) resetSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeAssistant = ""
	t.knownUser = make(map[string]struct{})
	t.pendingSession = ""
	t.loading = false
	t.lastErr = ""
	t.gen++
	if t.watchdog != nil {
		t.watchdog.Stop()
		t.watchdog = nil
	}
}

// armWatchdog (re)starts the silence timer for the in-flight turn, advancing
// the generation so any previously fired timer goes stale. A zero duration
// disables the watchdog.
func (t *turnState) armWatchdog(d time.Duration, onTimeout func(gen uint64)) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.watchdog != nil {
		t.watchdog.Stop()
	}
	t.gen++
	g := t.gen
	t.watchdog = time.AfterFunc(d, func() { onTimeout(g) })
}
