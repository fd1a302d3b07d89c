package chat

import (
	"context"

	"deskcode/opencode"
)

// Agent is the outbound surface of the agent server that the conversation
// core depends on. *opencode.Client satisfies it; tests substitute fakes.
type Agent interface {
	CreateSession(ctx context.Context, title string) (opencode.Session, error)
	ListSessions(ctx context.Context) ([]opencode.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Messages(ctx context.Context, sessionID string) ([]opencode.MessageWithParts, error)
	SendPrompt(ctx context.Context, sessionID string, req opencode.PromptRequest) error
	Abort(ctx context.Context, sessionID string) error
}

var _ Agent = (*opencode.Client)(nil)

// PermissionHandler receives permission requests lifted off the event
// stream. Handlers respond through the server API out of band; the
// conversation state is never touched by permission traffic.
type PermissionHandler interface {
	HandlePermission(req opencode.PermissionRequest)
}

// PermissionHandlerFunc is a function adapter for PermissionHandler.
type PermissionHandlerFunc func(req opencode.PermissionRequest)

// HandlePermission implements PermissionHandler.
func (f PermissionHandlerFunc) HandlePermission(req opencode.PermissionRequest) {
	f(req)
}
