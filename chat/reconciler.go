package chat

import (
	"log/slog"
	"time"

	"deskcode/opencode"
)

// Reconciler is the protocol state machine. It consumes stream events one
// at a time in arrival order and converts them into Store mutations. It
// never fails: every path either updates the store or is a deliberate
// no-op, so a burst of queued events always applies cleanly. Duplicate or
// re-delivered part events are absorbed by the Store's keyed upsert.
type Reconciler struct {
	store    *Store
	sessions *SessionDirectory
	ts       *turnState
	perms    PermissionHandler
	logger   *slog.Logger
	notify   func()
	silence  time.Duration
}

func newReconciler(store *Store, sessions *SessionDirectory, ts *turnState, logger *slog.Logger, notify func()) *Reconciler {
	return &Reconciler{
		store:    store,
		sessions: sessions,
		ts:       ts,
		logger:   logger,
		notify:   notify,
	}
}

// Apply folds one event into the conversation state.
func (r *Reconciler) Apply(ev opencode.Event) {
	switch e := ev.(type) {
	case opencode.PermissionRequestEvent:
		// Approval is collected out of band; conversation state is not
		// touched.
		if r.perms != nil {
			r.perms.HandlePermission(e.Request)
		}

	case opencode.MessageUpdatedEvent:
		if r.dropForeign(e.Info.SessionID) {
			return
		}
		r.touch()
		r.applyMessage(e.Info)

	case opencode.PartUpdatedEvent:
		if r.dropForeign(e.Part.SessionID) {
			return
		}
		r.touch()
		r.applyPart(e.Part)

	case opencode.SessionStatusEvent:
		if r.dropForeign(e.SessionID) {
			return
		}
		switch e.Status {
		case "busy":
			r.touch()
			r.ts.setLoading(true)
			r.notify()
		case "idle":
			r.terminal()
		}

	case opencode.SessionIdleEvent:
		if r.dropForeign(e.SessionID) {
			return
		}
		r.terminal()

	case opencode.RunCompletedEvent:
		if r.dropForeign(e.SessionID) {
			return
		}
		r.terminal()

	case opencode.RunFailedEvent:
		if r.dropForeign(e.SessionID) {
			return
		}
		if e.Message != "" {
			r.ts.setErr(e.Message)
		} else {
			r.ts.setErr("the agent reported a failed run")
		}
		r.terminal()

	case opencode.SessionErrorEvent:
		if r.dropForeign(e.SessionID) {
			return
		}
		if e.Message != "" {
			r.ts.setErr(e.Message)
		} else {
			r.ts.setErr("the agent reported an error")
		}
		r.terminal()

	case opencode.SessionUpdatedEvent:
		// Directory bookkeeping only; never touches the message store.
		r.sessions.upsert(e.Info)
		r.notify()

	case opencode.HeartbeatEvent:
		// Keepalive, nothing to do.

	case opencode.UnknownEvent:
		r.logger.Debug("ignoring unknown event", "type", e.Tag)

	default:
		r.logger.Debug("ignoring unhandled event", "type", ev.EventType())
	}
}

// applyMessage handles message.created / message.updated.
func (r *Reconciler) applyMessage(info opencode.MessageInfo) {
	switch info.Role {
	case "user":
		// The optimistic insert already carries the full content; remember
		// the id so its part deltas are suppressed.
		r.ts.markUser(info.ID)

	case "assistant":
		if !r.store.Has(info.ID) {
			r.store.Append(Message{
				ID:        info.ID,
				Role:      RoleAssistant,
				Status:    StatusStreaming,
				Timestamp: messageTime(info),
			})
		}
		r.ts.setActive(info.ID)
		r.notify()
	}
}

// applyPart handles message.part.updated.
func (r *Reconciler) applyPart(wp opencode.Part) {
	if r.ts.isUser(wp.MessageID) {
		return
	}

	// A part may outrun its message-level event; materialize the assistant
	// message on first contact so the delta has somewhere to land.
	if r.ts.active() == "" && !r.store.Has(wp.MessageID) {
		r.store.Append(Message{
			ID:        wp.MessageID,
			Role:      RoleAssistant,
			Status:    StatusStreaming,
			Timestamp: time.Now(),
		})
		r.ts.setActive(wp.MessageID)
	}

	target := r.ts.active()
	if target == "" {
		target = wp.MessageID
	}

	part, ok := partFromWire(wp)
	if !ok {
		return
	}
	r.store.UpsertPart(target, part)
	r.notify()
}

// partFromWire classifies a wire part into the local model. Returns false
// for part types that carry no renderable content (step markers and the
// like).
func partFromWire(wp opencode.Part) (Part, bool) {
	switch wp.Type {
	case opencode.PartTypeText:
		return Part{ID: wp.ID, Type: PartText, Content: wp.Text}, true

	case opencode.PartTypeReasoning:
		return Part{ID: wp.ID, Type: PartReasoning, Content: wp.Text}, true

	case opencode.PartTypeTool:
		return toolPartFromWire(wp), true

	default:
		return Part{}, false
	}
}

// toolPartFromWire classifies a tool part by its execution status: pending
// and running stay invocations, completed and error become results. Input
// and output are kept separately; string outputs holding JSON are
// re-indented for display.
func toolPartFromWire(wp opencode.Part) Part {
	part := Part{
		ID:       wp.ID,
		ToolName: wp.Tool,
	}

	var state opencode.ToolState
	if wp.State != nil {
		state = *wp.State
	}
	part.ToolInput = prettyJSON(state.Input)

	switch state.Status {
	case opencode.ToolStatusCompleted:
		part.Type = PartToolResult
		part.ToolStatus = opencode.ToolStatusCompleted
		part.ToolOutput = prettyMaybeJSON(state.Output)
		part.Content = part.ToolOutput

	case opencode.ToolStatusError:
		part.Type = PartToolResult
		part.ToolStatus = opencode.ToolStatusError
		part.ToolError = state.Error
		part.Content = state.Error

	default:
		part.Type = PartToolInvocation
		part.ToolStatus = state.Status
		if part.ToolStatus == "" {
			part.ToolStatus = opencode.ToolStatusPending
		}
		part.Content = part.ToolInput
	}
	return part
}

// terminal performs the turn-ending transition: the active assistant
// message (if any) is marked complete as-is, trackers are cleared, and
// loading drops so the interface can never hang on a finished turn.
func (r *Reconciler) terminal() {
	if active := r.ts.finishTurn(); active != "" {
		r.store.SetStatus(active, StatusComplete)
	}
	r.notify()
}

// timeoutTurn forces a terminal transition after prolonged event silence on
// an in-flight turn, marking the partial message as errored instead of
// complete. The generation check makes a timer that fired while being
// replaced a no-op, so a stale timeout can never end a fresh turn.
func (r *Reconciler) timeoutTurn(gen uint64) {
	active, ok := r.ts.expireTurn(gen)
	if !ok {
		return
	}
	if active != "" {
		r.store.SetStatus(active, StatusError)
	}
	r.ts.setErr("the turn timed out waiting for the agent")
	r.notify()
}

// touch re-arms the silence watchdog while a turn is in flight.
func (r *Reconciler) touch() {
	if r.silence > 0 && r.ts.isLoading() {
		r.ts.armWatchdog(r.silence, r.timeoutTurn)
	}
}

// dropForeign reports whether an event belongs to a session other than the
// current one. Events without a session id pass through.
func (r *Reconciler) dropForeign(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	current, ok := r.sessions.CurrentID()
	if !ok {
		return false
	}
	return sessionID != current
}

func messageTime(info opencode.MessageInfo) time.Time {
	if info.Time.Created > 0 {
		return time.UnixMilli(info.Time.Created)
	}
	return time.Now()
}
