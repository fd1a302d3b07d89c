package opencode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// streamBufferSize bounds a single SSE frame; large tool outputs can push
// part updates into the hundreds of kilobytes.
const streamBufferSize = 4 * 1024 * 1024

// Subscribe opens the server's event stream and returns a channel of decoded
// events plus an error channel. The event channel preserves server emission
// order and closes when the stream ends; a transport failure is reported on
// the error channel first. Frames that fail to decode are logged at debug
// level and skipped — they never terminate the stream.
//
// Missed events are not replayable: after a dropped stream the caller must
// resubscribe and reload session history to resynchronize.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		// No request timeout: the stream stays open for the life of ctx.
		transport := &http.Client{Transport: c.httpClient.Transport}
		resp, err := transport.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- &APIError{Method: http.MethodGet, Path: "/event", Status: resp.StatusCode}
			return
		}

		if err := readEventStream(ctx, resp.Body, events); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// readEventStream decodes SSE frames from r and forwards typed events on out
// until EOF, a read error, or ctx cancellation.
func readEventStream(ctx context.Context, r io.Reader, out chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), streamBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			// Comments, event names, and blank separators are not payloads.
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}

		ev, err := ParseEvent(data)
		if err != nil {
			slog.Debug("skipping undecodable stream frame", "error", err)
			continue
		}
		if _, ok := ev.(HeartbeatEvent); ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}
