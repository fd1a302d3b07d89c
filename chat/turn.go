package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"deskcode/opencode"
)

// ErrNoUserMessage indicates a regenerate request on a transcript with no
// user message to replay.
var ErrNoUserMessage = errors.New("no user message to regenerate")

// ModelRef is a split "provider/model" identifier.
type ModelRef struct {
	ProviderID string
	ModelID    string
}

// SplitModelRef splits a model identifier on the first slash. A bare model
// id is paired with the given default provider.
func SplitModelRef(ref, defaultProvider string) ModelRef {
	provider, model, found := strings.Cut(ref, "/")
	if !found {
		return ModelRef{ProviderID: defaultProvider, ModelID: ref}
	}
	return ModelRef{ProviderID: provider, ModelID: model}
}

// TurnController orchestrates one request/response cycle: optimistic user
// insertion, prompt dispatch, and regeneration. Completion is observed on
// the event stream, never in a dispatch call's return value; the only
// exception is a transport failure, which resolves the turn immediately
// because no terminal event will ever arrive for it.
type TurnController struct {
	agent    Agent
	store    *Store
	sessions *SessionDirectory
	ts       *turnState
	rec      *Reconciler
	logger   *slog.Logger
	notify   func()

	model           string
	defaultProvider string
	systemPrompt    string
	silence         time.Duration
}

func newTurnController(agent Agent, store *Store, sessions *SessionDirectory, ts *turnState, rec *Reconciler, logger *slog.Logger, notify func()) *TurnController {
	return &TurnController{
		agent:    agent,
		store:    store,
		sessions: sessions,
		ts:       ts,
		rec:      rec,
		logger:   logger,
		notify:   notify,
	}
}

// SendMessage appends the user's text optimistically and dispatches it as a
// prompt for the active session, creating a session first if none is
// selected. The call returns once the dispatch goroutine is started.
func (tc *TurnController) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty message")
	}

	session, ok := tc.sessions.Current()
	if !ok {
		created, err := tc.sessions.Create(ctx, "")
		if err != nil {
			return err
		}
		session = created
	}

	messageID := "msg_" + uuid.NewString()
	tc.ts.markUser(messageID)
	tc.store.Append(Message{
		ID:     messageID,
		Role:   RoleUser,
		Status: StatusComplete,
		Parts: []Part{
			{ID: messageID + "_text", Type: PartText, Content: text},
		},
		Timestamp: time.Now(),
	})

	tc.beginTurn()
	go tc.dispatch(session.ID, tc.buildPrompt(messageID, text))
	return nil
}

// RegenerateLastMessage truncates the transcript to the most recent user
// message, discarding any assistant output after it, and re-dispatches the
// same text as a new prompt.
func (tc *TurnController) RegenerateLastMessage(ctx context.Context) error {
	session, ok := tc.sessions.Current()
	if !ok {
		return ErrNoSession
	}

	last, ok := tc.store.LastUserMessage()
	if !ok {
		return ErrNoUserMessage
	}

	tc.store.TruncateAfter(last.ID)
	tc.ts.setActive("")

	tc.beginTurn()
	go tc.dispatch(session.ID, tc.buildPrompt("", last.Content))
	return nil
}

// AbortSession asks the server to cancel the in-flight turn. Local state is
// left alone: resolution comes from the subsequent terminal event, or from
// the silence watchdog if that event never arrives. No-op without an
// active session.
func (tc *TurnController) AbortSession(ctx context.Context) error {
	id, ok := tc.sessions.CurrentID()
	if !ok {
		return nil
	}
	return tc.agent.Abort(ctx, id)
}

// beginTurn flips loading on and arms the silence watchdog.
func (tc *TurnController) beginTurn() {
	tc.ts.setErr("")
	tc.ts.setLoading(true)
	if tc.silence > 0 {
		tc.ts.armWatchdog(tc.silence, tc.rec.timeoutTurn)
	}
	tc.notify()
}

// buildPrompt assembles the dispatch request, splitting the model reference
// into (provider, model) on the first slash.
func (tc *TurnController) buildPrompt(messageID, text string) opencode.PromptRequest {
	ref := SplitModelRef(tc.model, tc.defaultProvider)
	return opencode.PromptRequest{
		MessageID:  messageID,
		ProviderID: ref.ProviderID,
		ModelID:    ref.ModelID,
		System:     tc.systemPrompt,
		Parts:      []opencode.PromptInput{{Type: "text", Text: text}},
	}
}

// dispatch performs the prompt call. Transport failures resolve the turn on
// the spot: the optimistic user message stays in the transcript, the error
// surfaces, and loading clears because no terminal event will come.
func (tc *TurnController) dispatch(sessionID string, req opencode.PromptRequest) {
	if err := tc.agent.SendPrompt(context.Background(), sessionID, req); err != nil {
		tc.logger.Warn("prompt dispatch failed", "session", sessionID, "error", err)
		tc.ts.setErr(err.Error())
		if active := tc.ts.finishTurn(); active != "" {
			tc.store.SetStatus(active, StatusError)
		}
		tc.notify()
	}
}

// SetModel changes the model used for subsequent dispatches.
func (tc *TurnController) SetModel(ref string) {
	tc.model = ref
}

// Model returns the current model reference.
func (tc *TurnController) Model() string {
	return tc.model
}
