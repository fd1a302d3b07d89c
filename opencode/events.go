package opencode

import (
	"encoding/json"
)

// Event type tags emitted by the server stream.
const (
	EventTypeMessageCreated    = "message.created"
	EventTypeMessageUpdated    = "message.updated"
	EventTypePartUpdated       = "message.part.updated"
	EventTypeSessionStatus     = "session.status"
	EventTypeSessionIdle       = "session.idle"
	EventTypeSessionError      = "session.error"
	EventTypeSessionCreated    = "session.created"
	EventTypeSessionUpdated    = "session.updated"
	EventTypeRunCompleted      = "run.completed"
	EventTypeRunFailed         = "run.failed"
	EventTypePermissionRequest = "permission.request"
	EventTypeHeartbeat         = "server.heartbeat"
	EventTypeConnected         = "server.connected"
)

// Part types carried by message.part.updated.
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// Tool execution statuses carried in a tool part's state.
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// Event is implemented by all decoded stream events.
type Event interface {
	EventType() string
}

// MessageInfo is the message metadata carried by message lifecycle events
// and by history responses.
type MessageInfo struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	SessionID  string      `json:"sessionID"`
	ProviderID string      `json:"providerID,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	Time       MessageTime `json:"time"`
}

// MessageTime holds message timestamps as unix milliseconds.
type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// ToolState is the execution state embedded in a tool part.
type ToolState struct {
	Status string         `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Title  string         `json:"title,omitempty"`
}

// Part is one fragment of a message on the wire.
type Part struct {
	ID        string     `json:"id"`
	MessageID string     `json:"messageID"`
	SessionID string     `json:"sessionID"`
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	CallID    string     `json:"callID,omitempty"`
	State     *ToolState `json:"state,omitempty"`
}

// Session is a conversation thread as reported by the server.
type Session struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Time  SessionTime `json:"time"`
}

// SessionTime holds session timestamps as unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// PermissionRequest asks the client to approve or reject a server-side
// action before the agent proceeds.
type PermissionRequest struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionID,omitempty"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
	Command     string `json:"command,omitempty"`
	Diff        string `json:"diff,omitempty"`
}

// MessageUpdatedEvent covers both message.created and message.updated; the
// reconciliation rules for the two tags are identical, so the original tag
// is preserved in Tag rather than split into separate types.
type MessageUpdatedEvent struct {
	Tag  string
	Info MessageInfo
}

func (e MessageUpdatedEvent) EventType() string { return e.Tag }

// PartUpdatedEvent carries the latest full state of one message part.
type PartUpdatedEvent struct {
	Part Part
}

func (e PartUpdatedEvent) EventType() string { return EventTypePartUpdated }

// SessionStatusEvent reports the server-side busy/idle status of a session.
type SessionStatusEvent struct {
	SessionID string
	Status    string
}

func (e SessionStatusEvent) EventType() string { return EventTypeSessionStatus }

// SessionIdleEvent signals the end of the in-flight turn.
type SessionIdleEvent struct {
	SessionID string
}

func (e SessionIdleEvent) EventType() string { return EventTypeSessionIdle }

// RunCompletedEvent signals a successfully completed turn.
type RunCompletedEvent struct {
	SessionID string
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }

// RunFailedEvent signals a turn that ended in failure.
type RunFailedEvent struct {
	SessionID string
	Message   string
}

func (e RunFailedEvent) EventType() string { return EventTypeRunFailed }

// SessionErrorEvent carries an agent-reported error for a session.
type SessionErrorEvent struct {
	SessionID string
	Message   string
}

func (e SessionErrorEvent) EventType() string { return EventTypeSessionError }

// SessionUpdatedEvent covers session.created and session.updated.
type SessionUpdatedEvent struct {
	Tag  string
	Info Session
}

func (e SessionUpdatedEvent) EventType() string { return e.Tag }

// PermissionRequestEvent asks the client for an approval decision.
type PermissionRequestEvent struct {
	Request PermissionRequest
}

func (e PermissionRequestEvent) EventType() string { return EventTypePermissionRequest }

// HeartbeatEvent is a keepalive; it carries no state.
type HeartbeatEvent struct {
	Tag string
}

func (e HeartbeatEvent) EventType() string { return e.Tag }

// UnknownEvent preserves the raw payload of an unrecognized event type so
// new server versions never break the stream loop.
type UnknownEvent struct {
	Tag string
	Raw json.RawMessage
}

func (e UnknownEvent) EventType() string { return e.Tag }

// wireEvent is the outer frame of every stream message.
type wireEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// ParseEvent decodes one stream frame into a typed event. Malformed JSON
// returns a *DecodeError; an unrecognized type tag returns UnknownEvent and
// no error.
func ParseEvent(data []byte) (Event, error) {
	var frame wireEvent
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, &DecodeError{Line: string(data), Cause: err}
	}

	props := frame.Properties
	if len(props) == 0 {
		props = json.RawMessage("{}")
	}

	switch frame.Type {
	case EventTypeMessageCreated, EventTypeMessageUpdated:
		info, err := parseMessageInfo(props)
		if err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		return MessageUpdatedEvent{Tag: frame.Type, Info: info}, nil

	case EventTypePartUpdated:
		var payload struct {
			Part Part `json:"part"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		if payload.Part.ID == "" {
			// Flat form: the part fields sit directly in properties.
			if err := json.Unmarshal(props, &payload.Part); err != nil {
				return nil, &DecodeError{Line: string(data), Cause: err}
			}
		}
		return PartUpdatedEvent{Part: payload.Part}, nil

	case EventTypeSessionStatus:
		var payload struct {
			SessionID string `json:"sessionID"`
			Type      string `json:"type"`
			Status    *struct {
				Type string `json:"type"`
			} `json:"status"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		status := payload.Type
		if payload.Status != nil {
			status = payload.Status.Type
		}
		return SessionStatusEvent{SessionID: payload.SessionID, Status: status}, nil

	case EventTypeSessionIdle:
		var payload struct {
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		return SessionIdleEvent{SessionID: payload.SessionID}, nil

	case EventTypeRunCompleted:
		var payload struct {
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		return RunCompletedEvent{SessionID: payload.SessionID}, nil

	case EventTypeRunFailed:
		var payload struct {
			SessionID string          `json:"sessionID"`
			Message   string          `json:"message"`
			Error     json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		msg := payload.Message
		if msg == "" {
			msg = parseErrorField(payload.Error)
		}
		return RunFailedEvent{SessionID: payload.SessionID, Message: msg}, nil

	case EventTypeSessionError:
		var payload struct {
			SessionID string          `json:"sessionID"`
			Message   string          `json:"message"`
			Error     json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		msg := payload.Message
		if msg == "" {
			msg = parseErrorField(payload.Error)
		}
		return SessionErrorEvent{SessionID: payload.SessionID, Message: msg}, nil

	case EventTypeSessionCreated, EventTypeSessionUpdated:
		var payload struct {
			Info Session `json:"info"`
		}
		if err := json.Unmarshal(props, &payload); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		if payload.Info.ID == "" {
			if err := json.Unmarshal(props, &payload.Info); err != nil {
				return nil, &DecodeError{Line: string(data), Cause: err}
			}
		}
		return SessionUpdatedEvent{Tag: frame.Type, Info: payload.Info}, nil

	case EventTypePermissionRequest:
		var req PermissionRequest
		if err := json.Unmarshal(props, &req); err != nil {
			return nil, &DecodeError{Line: string(data), Cause: err}
		}
		return PermissionRequestEvent{Request: req}, nil

	case EventTypeHeartbeat, EventTypeConnected:
		return HeartbeatEvent{Tag: frame.Type}, nil

	default:
		return UnknownEvent{Tag: frame.Type, Raw: props}, nil
	}
}

// parseMessageInfo accepts both the info-wrapped and the flat payload form.
func parseMessageInfo(props json.RawMessage) (MessageInfo, error) {
	var payload struct {
		Info MessageInfo `json:"info"`
	}
	if err := json.Unmarshal(props, &payload); err != nil {
		return MessageInfo{}, err
	}
	if payload.Info.ID != "" {
		return payload.Info, nil
	}
	var flat MessageInfo
	if err := json.Unmarshal(props, &flat); err != nil {
		return MessageInfo{}, err
	}
	return flat, nil
}

// parseErrorField extracts a message from an error value that may be either
// a bare string or an object with a message field.
func parseErrorField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Name
	}
	return string(raw)
}
