package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the agent server's HTTP API. All methods are safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL validates a server URL and strips any trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("server url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid server url %q: scheme must be http or https", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// MessageWithParts is one history entry: message metadata plus its parts.
type MessageWithParts struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// PromptInput is one input fragment of a prompt.
type PromptInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptRequest dispatches one user turn. The response to the prompt is
// observed on the event stream, not in the call's return value.
type PromptRequest struct {
	MessageID  string        `json:"messageID,omitempty"`
	ProviderID string        `json:"providerID"`
	ModelID    string        `json:"modelID"`
	System     string        `json:"system,omitempty"`
	Parts      []PromptInput `json:"parts"`
}

// PermissionReply is the three-way answer to a permission request.
type PermissionReply string

const (
	PermissionOnce   PermissionReply = "once"
	PermissionAlways PermissionReply = "always"
	PermissionReject PermissionReply = "reject"
)

// Provider describes one model provider known to the server.
type Provider struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Models []Model `json:"models"`
}

// Model describes one model offered by a provider.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProvidersResponse lists available providers and the configured default.
type ProvidersResponse struct {
	Providers []Provider `json:"providers"`
	Default   string     `json:"default,omitempty"`
}

// OAuthAuthorization is the start of a provider OAuth flow: the user visits
// URL and the server completes the exchange.
type OAuthAuthorization struct {
	URL          string `json:"url"`
	Verifier     string `json:"verifier,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// CreateSession creates a new session with an optional title.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	var body any
	if title != "" {
		body = map[string]string{"title": title}
	} else {
		body = map[string]string{}
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/session", body, &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// ListSessions returns all sessions known to the server.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil, nil)
}

// UpdateSessionTitle renames a session.
func (c *Client) UpdateSessionTitle(ctx context.Context, sessionID, title string) (Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPatch, "/session/"+url.PathEscape(sessionID),
		map[string]string{"title": title}, &session)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// Messages fetches the full message history of a session.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]MessageWithParts, error) {
	var messages []MessageWithParts
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendPrompt dispatches a prompt for a session. The server holds the request
// open until the turn finishes, so this call bypasses the client's request
// timeout; callers that want fire-and-forget semantics run it in a goroutine
// and watch the event stream instead.
func (c *Client) SendPrompt(ctx context.Context, sessionID string, req PromptRequest) error {
	path := "/session/" + url.PathEscape(sessionID) + "/message"

	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	long := &http.Client{Transport: c.httpClient.Transport}
	resp, err := long.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Method: http.MethodPost,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(raw)),
		}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Abort requests cancellation of the session's in-flight turn. Best-effort:
// the turn's resolution still arrives on the event stream.
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/abort", nil, nil)
}

// RespondPermission answers a permission request.
func (c *Client) RespondPermission(ctx context.Context, permissionID string, reply PermissionReply) error {
	path := "/permission/" + url.PathEscape(permissionID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"response": string(reply)}, nil)
}

// Providers lists the providers and models the server can dispatch to.
func (c *Client) Providers(ctx context.Context) (ProvidersResponse, error) {
	var resp ProvidersResponse
	if err := c.do(ctx, http.MethodGet, "/config/providers", nil, &resp); err != nil {
		return ProvidersResponse{}, err
	}
	return resp, nil
}

// SetAuth stores an API key for a provider on the server.
func (c *Client) SetAuth(ctx context.Context, providerID, apiKey string) error {
	path := "/auth/" + url.PathEscape(providerID)
	return c.do(ctx, http.MethodPut, path, map[string]string{"type": "api", "key": apiKey}, nil)
}

// AuthorizeOAuth starts an OAuth authorization flow for a provider.
func (c *Client) AuthorizeOAuth(ctx context.Context, providerID string) (OAuthAuthorization, error) {
	var auth OAuthAuthorization
	path := "/auth/" + url.PathEscape(providerID) + "/authorize"
	if err := c.do(ctx, http.MethodPost, path, nil, &auth); err != nil {
		return OAuthAuthorization{}, err
	}
	return auth, nil
}

// do runs one JSON request/response round trip against the server API.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(raw)),
		}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
