package deletion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
	"github.com/maruaican/Quick-Folder-Deleter/internal/limiter"
	"github.com/maruaican/Quick-Folder-Deleter/internal/scan"
)

var ErrAlreadyStarted = errors.New("operation already started")

// Outcome is the terminal state of an operation
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeScanFailed Outcome = "scan_failed"
)

// Metrics receives operation-level measurements
type Metrics interface {
	OperationStarted()
	OperationFinished(outcome string, seconds float64, bytes int64)
	EventEmitted(kind string)
	SweepFinished(retried, failed int)
}

type noopMetrics struct{}

func (noopMetrics) OperationStarted() {}

func (noopMetrics) OperationFinished(string, float64, int64) {}

func (noopMetrics) EventEmitted(string) {}

func (noopMetrics) SweepFinished(int, int) {}

// Options configures an operation. Zero values pick production defaults.
type Options struct {
	Fs        afero.Fs
	Pacer     *limiter.Pacer
	Logger    *log.Logger
	Metrics   Metrics
	Observers []events.Observer
	Buffer    int // events queued ahead of the consumer
	OnFinish  func(Result)
}

// Result summarises a finished operation
type Result struct {
	ID        string
	Target    string
	Outcome   Outcome
	Total     int
	Processed int
	Bytes     int64
	Walk      WalkResult
	Sweep     SweepResult
	Started   time.Time
	Finished  time.Time
}

// Operation deletes one target tree and streams its progress. It holds all
// state of the run; nothing is shared between operations. An operation runs
// once.
type Operation struct {
	id      string
	target  string
	fs      afero.Fs
	engine  *Engine
	sweeper *Sweeper
	stream  *events.Stream
	logger  Logger
	metrics Metrics
	finish  func(Result)
	started bool
}

// New prepares an operation on an already validated target
func New(target string, opts Options) *Operation {
	if opts.Fs == nil {
		opts.Fs = fsops.NewOsFs()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	logger := newStdLogger(opts.Logger)
	id := uuid.NewString()

	return &Operation{
		id:      id,
		target:  target,
		fs:      opts.Fs,
		engine:  NewEngine(opts.Fs, opts.Pacer, logger),
		sweeper: NewSweeper(opts.Fs, logger),
		stream:  events.NewStream(id, target, opts.Buffer, opts.Observers...),
		logger:  logger,
		metrics: opts.Metrics,
		finish:  opts.OnFinish,
	}
}

func (o *Operation) ID() string {
	return o.id
}

func (o *Operation) Target() string {
	return o.target
}

// Events is the consumer side of the operation's event sequence
func (o *Operation) Events() <-chan events.Event {
	return o.stream.Events()
}

// Start runs the operation on its own goroutine and returns the event channel.
// ctx only signals the consumer's presence: cancelling it detaches the stream
// but the deletion still runs to completion.
func (o *Operation) Start(ctx context.Context) <-chan events.Event {
	ch := o.stream.Events()
	go func() {
		if _, err := o.Run(ctx); err != nil {
			o.logger.Error("Operation failed", "op", o.id, "error", err)
		}
	}()
	return ch
}

// Run executes scan, walk, sweep and the final check on the calling goroutine,
// emitting events as it goes, and closes the stream when done.
func (o *Operation) Run(ctx context.Context) (res Result, err error) {
	res = Result{ID: o.id, Target: o.target, Started: time.Now()}
	if o.started {
		return res, ErrAlreadyStarted
	}
	o.started = true
	defer o.stream.Close()

	o.metrics.OperationStarted()
	defer func() {
		res.Finished = time.Now()
		o.metrics.OperationFinished(string(res.Outcome), res.Finished.Sub(res.Started).Seconds(), res.Bytes)
		o.logger.Info("Operation finished",
			"op", o.id,
			"target", o.target,
			"outcome", res.Outcome,
			"processed", res.Processed,
			"total", res.Total,
			"detached", o.stream.Detached(),
		)
		if o.finish != nil {
			o.finish(res)
		}
	}()

	if err := o.info(ctx, fmt.Sprintf("[INFO] deletion started: %s", o.target), 0); err != nil {
		return res, err
	}

	st, err := scan.Count(o.fs, o.target)
	if err != nil {
		res.Outcome = OutcomeScanFailed
		if err := o.Emit(ctx, events.Event{
			Kind:    events.KindError,
			Message: fmt.Sprintf("[ERROR] scan of target failed: %v", err),
		}); err != nil {
			return res, err
		}
		return res, o.Emit(ctx, events.Event{Kind: events.KindEnd, Message: "[END] done"})
	}
	res.Total = st.Items
	res.Bytes = st.Bytes
	if st.Unreadable > 0 {
		o.logger.Warn("Some directories could not be scanned", "op", o.id, "count", st.Unreadable)
	}

	progress := NewProgress(st.Items)
	if st.Items == 0 {
		if err := o.info(ctx, "[INFO] no files or subfolders in target", 100); err != nil {
			return res, err
		}
	} else {
		if err := o.info(ctx, fmt.Sprintf("[INFO] items to delete: %d", st.Items), 0); err != nil {
			return res, err
		}
		walk, err := o.engine.Walk(ctx, o.target, progress, o)
		res.Walk = walk
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return res, err
			}
			if err := o.Emit(ctx, events.Event{
				Kind:     events.KindError,
				Message:  fmt.Sprintf("[ERROR] deletion walk aborted: %v", err),
				Progress: progress.Percent(),
			}); err != nil {
				return res, err
			}
		}
	}
	res.Processed = progress.Processed()

	// The sweep always runs: it is what removes the root itself.
	sweep, err := o.sweeper.Sweep(o.target)
	res.Sweep = sweep
	o.metrics.SweepFinished(sweep.Retried, sweep.Failed)
	if err != nil {
		if err := o.Emit(ctx, events.Event{
			Kind:     events.KindError,
			Message:  fmt.Sprintf("[ERROR] final sweep raised: %v", err),
			Progress: progress.Percent(),
		}); err != nil {
			return res, err
		}
	}

	if !fsops.Exists(o.fs, o.target) {
		res.Outcome = OutcomeSuccess
		if err := o.Emit(ctx, events.Event{
			Kind:     events.KindSuccess,
			Message:  fmt.Sprintf("[SUCCESS] directory completely removed: %s", o.target),
			Progress: 100,
		}); err != nil {
			return res, err
		}
		return res, o.Emit(ctx, events.Event{Kind: events.KindEnd, Message: "[END] done", Progress: 100})
	}

	res.Outcome = OutcomeIncomplete
	if err := o.Emit(ctx, events.Event{
		Kind:     events.KindError,
		Message:  fmt.Sprintf("[ERROR] still exists after deletion: %s", o.target),
		Progress: progress.Percent(),
	}); err != nil {
		return res, err
	}
	return res, o.Emit(ctx, events.Event{
		Kind:     events.KindEnd,
		Message:  "[END] done (incomplete)",
		Progress: progress.Percent(),
	})
}

// Emit logs e, counts it and appends it to the stream
func (o *Operation) Emit(ctx context.Context, e events.Event) error {
	if e.Kind == events.KindError {
		o.logger.Error(e.Message, "op", o.id, "progress", e.Progress)
	} else {
		o.logger.Info(e.Message, "op", o.id, "progress", e.Progress)
	}
	o.metrics.EventEmitted(string(e.Kind))
	return o.stream.Emit(ctx, e)
}

func (o *Operation) info(ctx context.Context, msg string, progress int) error {
	return o.Emit(ctx, events.Event{Kind: events.KindInfo, Message: msg, Progress: progress})
}
