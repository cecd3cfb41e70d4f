package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHubBroadcastsEnvelopes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(quietLogger())
	go hub.Run(ctx)

	srv := httptest.NewServer(HandleMonitor(ctx, hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Observe(events.Envelope{
		OperationID: "op-1",
		Target:      "/srv/scratch/a",
		Seq:         3,
		Event:       events.Event{Kind: events.KindDel, Message: "[DEL] /srv/scratch/a/x", Progress: 50},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "op-1", env.OperationID)
	assert.Equal(t, 3, env.Seq)
	assert.Equal(t, events.KindDel, env.Event.Kind)
	assert.Equal(t, 50, env.Event.Progress)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubObserveNeverBlocks(t *testing.T) {
	hub := NewHub(quietLogger())

	// Nothing drains the hub; Observe must still return immediately
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue+10; i++ {
			hub.Observe(events.Envelope{OperationID: "op", Seq: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked")
	}
	assert.Equal(t, int64(10), hub.Dropped())
}

func TestServeEventsWritesSequenceAndCloses(t *testing.T) {
	evs := make(chan events.Event, 3)
	evs <- events.Event{Kind: events.KindInfo, Message: "[INFO] deletion started: /x", Progress: 0}
	evs <- events.Event{Kind: events.KindSuccess, Message: "[SUCCESS] <a&b>", Progress: 100}
	evs <- events.Event{Kind: events.KindEnd, Message: "[END] done", Progress: 100}
	close(evs)

	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			served <- err
			return
		}
		served <- ServeEvents(conn, evs, func() {})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			break
		}
		got = append(got, string(data))
	}

	require.Len(t, got, 3)
	assert.Equal(t, `{"kind":"success","message":"[SUCCESS] <a&b>","progress":100}`, got[1])
	assert.Equal(t, `{"kind":"end","message":"[END] done","progress":100}`, got[2])
	assert.NoError(t, <-served)
}

func TestServeEventsCancelsWhenPeerLeaves(t *testing.T) {
	evs := make(chan events.Event)
	cancelled := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		serveEvents(conn, evs, func() {
			once.Do(func() { close(cancelled) })
		}, 20*time.Millisecond)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/"), nil)
	require.NoError(t, err)
	conn.Close()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer departure was not signalled")
	}
}
