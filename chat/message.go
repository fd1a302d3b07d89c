// Package chat maintains a consistent, append-only view of a conversation
// reconciled from the agent server's event stream. The Store holds the
// transcript, the Reconciler applies inbound events to it, the
// TurnController drives outbound prompt dispatch, and the SessionDirectory
// tracks the session list. All mutation is serialized: one event or
// controller operation completes before the next is applied.
package chat

import (
	"encoding/json"
	"time"
)

// Role identifies who contributed a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus is the lifecycle state of a message. Transitions only move
// forward (pending/streaming to complete or error); the one exception is
// history truncation for regeneration, which removes messages outright.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusComplete  MessageStatus = "complete"
	StatusError     MessageStatus = "error"
)

// PartType classifies a message fragment.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
	PartToolResult     PartType = "tool-result"
)

// Part is one addressable fragment of a message. Its ID is the upsert key:
// a later event for the same key replaces the part in place, preserving its
// position in the sequence. Tool parts are keyed by ID alone so a running
// invocation transitions into its result without leaving a duplicate entry.
type Part struct {
	ID         string
	Type       PartType
	Content    string
	ToolName   string
	ToolInput  string
	ToolOutput string
	ToolError  string
	ToolStatus string
}

// isTool reports whether the part is either tool variant.
func (p Part) isTool() bool {
	return p.Type == PartToolInvocation || p.Type == PartToolResult
}

// Message is one turn's contribution by one role. ID is assigned once and
// never changes. Content is the newline join of the text parts in
// first-seen order, recomputed by the Store on every part upsert.
type Message struct {
	ID        string
	Role      Role
	Status    MessageStatus
	Content   string
	Parts     []Part
	Timestamp time.Time
}

// Session is a named conversation thread.
type Session struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// prettyJSON renders v as indented JSON for display. Unencodable values
// fall back to fmt-style stringification via the raw map text.
func prettyJSON(v any) string {
	if v == nil {
		return ""
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}

// prettyMaybeJSON re-indents s when it holds a JSON document; otherwise it
// returns s unchanged.
func prettyMaybeJSON(s string) string {
	if s == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(out)
}
