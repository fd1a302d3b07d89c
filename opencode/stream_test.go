package opencode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestSubscribeDecodesFramesInOrder(t *testing.T) {
	frames := strings.Join([]string{
		`data: {"type":"message.created","properties":{"info":{"id":"m1","role":"assistant"}}}`,
		``,
		`: keepalive comment`,
		`data: {"type":"message.part.updated","properties":{"part":{"id":"p1","messageID":"m1","type":"text","text":"Hi"}}}`,
		``,
		`data: {"type":"server.heartbeat"}`,
		``,
		`data: {"type":"session.idle","properties":{"sessionID":"ses_1"}}`,
		``,
	}, "\n") + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(frames))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	events, errs := client.Subscribe(context.Background())
	got := collectEvents(t, events)
	require.NoError(t, <-errs)

	// Heartbeats are filtered; the rest arrive in emission order.
	require.Len(t, got, 3)
	assert.Equal(t, EventTypeMessageCreated, got[0].EventType())
	assert.Equal(t, EventTypePartUpdated, got[1].EventType())
	assert.Equal(t, EventTypeSessionIdle, got[2].EventType())

	part := got[1].(PartUpdatedEvent).Part
	assert.Equal(t, "Hi", part.Text)
}

func TestSubscribeSkipsUndecodableFrames(t *testing.T) {
	frames := "data: this is not json\n\n" +
		`data: {"type":"session.idle","properties":{}}` + "\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(frames))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	events, errs := client.Subscribe(context.Background())
	got := collectEvents(t, events)
	require.NoError(t, <-errs)

	require.Len(t, got, 1)
	assert.Equal(t, EventTypeSessionIdle, got[0].EventType())
}

func TestSubscribeReportsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	events, errs := client.Subscribe(context.Background())

	err = <-errs
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)

	_, open := <-events
	assert.False(t, open, "event channel closes after a failed subscribe")
}

func TestSubscribeConnectFailure(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, errs := client.Subscribe(ctx)
	require.Error(t, <-errs)
	_, open := <-events
	assert.False(t, open)
}
