package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/maruaican/Quick-Folder-Deleter/internal/deletion"
	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/limiter"
	"github.com/maruaican/Quick-Folder-Deleter/internal/metrics"
	"github.com/maruaican/Quick-Folder-Deleter/internal/safety"
	"github.com/maruaican/Quick-Folder-Deleter/internal/server/websocket"
)

const targetParam = "folder_path"

var errBusy = errors.New("too many deletions in progress, try again later")

// begin validates raw and starts an operation on it. A request that cannot
// start yields a channel holding one error event at progress 0.
// ctx only represents the consumer: the deletion outlives it.
func (s *Server) begin(ctx context.Context, raw string) <-chan events.Event {
	target, err := s.validator.ValidateTarget(raw)
	if err != nil {
		reason := rejectionReason(err)
		metrics.RecordRejection(reason)
		s.logger.Printf("[WARN] request rejected (%s): %v", reason, err)
		return rejected(err)
	}

	if !s.acquire() {
		metrics.RecordRejection("busy")
		s.logger.Printf("[WARN] request rejected (busy): %s", target)
		return rejected(errBusy)
	}

	s.running.Add(1)
	op := deletion.New(target, deletion.Options{
		Fs:        s.fs,
		Pacer:     limiter.NewPacer(s.cfg.Pause()),
		Logger:    s.logger,
		Metrics:   metrics.NewDeletionMetrics(),
		Observers: s.observers(),
		Buffer:    s.cfg.Server.StreamBuffer,
		OnFinish: func(res deletion.Result) {
			if s.recorder != nil {
				s.recorder.Finish(res)
			}
			s.release()
			s.running.Done()
		},
	})
	s.logger.Printf("[INFO] operation %s started on %s", op.ID(), target)
	return op.Start(ctx)
}

func rejected(err error) <-chan events.Event {
	ch := make(chan events.Event, 1)
	ch <- events.Event{Kind: events.KindError, Message: fmt.Sprintf("[ERROR] %v", err), Progress: 0}
	close(ch)
	return ch
}

func (s *Server) acquire() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// handleSSE streams one operation as text/event-stream, one data frame per
// event, flushed as soon as it is written
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	evs := s.begin(ctx, r.URL.Query().Get(targetParam))
	for {
		var e events.Event
		select {
		case <-ctx.Done():
			// consumer gone or server detaching streams; the operation goes on
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			e = ev
		}

		data, err := e.Encode()
		if err != nil {
			s.logger.Printf("[ERROR] cannot encode event: %v", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Printf("[WARN] stream consumer went away: %v", err)
			return
		}
		flusher.Flush()
	}
}

// handleWebSocketStream carries the same event sequence as text messages
func (s *Server) handleWebSocketStream(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get(targetParam)

	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		s.logger.Printf("[WARN] WebSocket upgrade error: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := websocket.ServeEvents(conn, s.begin(ctx, raw), cancel); err != nil {
		s.logger.Printf("[WARN] WebSocket stream ended early: %v", err)
	}
}

func rejectionReason(err error) string {
	reasons := []struct {
		err    error
		reason string
	}{
		{safety.ErrEmptyPath, "empty"},
		{safety.ErrNotAbsolute, "not_absolute"},
		{safety.ErrTraversal, "traversal"},
		{safety.ErrNotFound, "not_found"},
		{safety.ErrSymlink, "symlink"},
		{safety.ErrNotDirectory, "not_directory"},
		{safety.ErrProtectedPath, "protected"},
		{safety.ErrOutsideAllowed, "outside_allowed"},
		{safety.ErrSymlinkEscape, "symlink_escape"},
		{safety.ErrStaleMount, "stale_mount"},
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
