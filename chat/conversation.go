package chat

import (
	"log/slog"
	"time"

	"deskcode/opencode"
)

// Conversation wires the store, reconciler, turn controller, and session
// directory around one agent client. It is the single owned state object
// for a client instance: all mutation funnels through it, one event or
// operation at a time.
type Conversation struct {
	store    *Store
	sessions *SessionDirectory
	turns    *TurnController
	rec      *Reconciler
	ts       *turnState
	updates  chan struct{}
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithModel sets the model reference ("provider/model" or a bare model id)
// and the default provider used when the reference has no provider prefix.
func WithModel(ref, defaultProvider string) Option {
	return func(c *Conversation) {
		c.turns.model = ref
		c.turns.defaultProvider = defaultProvider
	}
}

// WithSystemPrompt sets the system prompt sent with every dispatch.
func WithSystemPrompt(prompt string) Option {
	return func(c *Conversation) {
		c.turns.systemPrompt = prompt
	}
}

// WithPermissionHandler installs the approval collaborator that receives
// permission requests from the stream.
func WithPermissionHandler(h PermissionHandler) Option {
	return func(c *Conversation) {
		c.rec.perms = h
	}
}

// WithTurnTimeout bounds how long an in-flight turn may go without events
// before it is forced into an errored terminal state. Zero disables the
// watchdog.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *Conversation) {
		c.rec.silence = d
		c.turns.silence = d
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conversation) {
		c.rec.logger = logger
		c.turns.logger = logger
		c.sessions.logger = logger
	}
}

// NewConversation builds the conversation core around an agent client.
func NewConversation(agent Agent, opts ...Option) *Conversation {
	c := &Conversation{
		store:   NewStore(),
		ts:      newTurnState(),
		updates: make(chan struct{}, 1),
	}
	logger := slog.Default()
	c.sessions = newSessionDirectory(agent, c.store, c.ts, logger, c.signal)
	c.rec = newReconciler(c.store, c.sessions, c.ts, logger, c.signal)
	c.turns = newTurnController(agent, c.store, c.sessions, c.ts, c.rec, logger, c.signal)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply folds one stream event into the conversation state. Events must be
// applied from a single goroutine; each is processed to completion before
// the next.
func (c *Conversation) Apply(ev opencode.Event) {
	c.rec.Apply(ev)
}

// Store exposes the transcript for snapshot reads.
func (c *Conversation) Store() *Store { return c.store }

// Sessions exposes the session directory.
func (c *Conversation) Sessions() *SessionDirectory { return c.sessions }

// Turns exposes the turn controller.
func (c *Conversation) Turns() *TurnController { return c.turns }

// ActiveMessage returns a snapshot of the assistant message currently
// receiving streamed parts, if any.
func (c *Conversation) ActiveMessage() (Message, bool) {
	id := c.ts.active()
	if id == "" {
		return Message{}, false
	}
	return c.store.Get(id)
}

// Loading reports whether a turn is in flight.
func (c *Conversation) Loading() bool { return c.ts.isLoading() }

// LastError returns the user-visible error slot; empty when the last turn
// resolved cleanly.
func (c *Conversation) LastError() string { return c.ts.err() }

// Updates returns a coalescing change signal: a receive means state changed
// since the last receive. Render loops select on it.
func (c *Conversation) Updates() <-chan struct{} { return c.updates }

// signal performs a non-blocking coalescing send on the update channel.
func (c *Conversation) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
