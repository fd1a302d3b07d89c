// Package opencode provides a client for a locally running OpenCode agent
// server. It covers the three surfaces the server exposes:
//
//   - the request/response HTTP API (sessions, message history, prompt
//     dispatch, abort, permissions, provider configuration), see Client;
//   - the server-sent event stream that carries message lifecycle, part
//     deltas, tool execution state, and session lifecycle, see
//     Client.Subscribe and ParseEvent;
//   - the server process itself, spawned as `opencode serve` bound to a
//     loopback port, see Server.
//
// Stream events decode into a closed set of typed values implementing the
// Event interface. Unrecognized event types decode into UnknownEvent rather
// than failing, so new server versions never break the stream loop.
package opencode
