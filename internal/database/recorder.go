package database

import (
	"log"
	"sync"

	"github.com/maruaican/Quick-Folder-Deleter/internal/deletion"
	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
)

// Recorder persists every event of every operation it observes. Write
// failures are logged and never interrupt a deletion.
type Recorder struct {
	db     *HistoryDB
	logger *log.Logger

	mu      sync.Mutex
	started map[string]bool
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *HistoryDB, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		db:      db,
		logger:  logger,
		started: make(map[string]bool),
	}
}

// Observe implements events.Observer
func (r *Recorder) Observe(env events.Envelope) {
	if r.firstSeen(env.OperationID) {
		if err := r.db.StartOperation(env.OperationID, env.Target, env.Time); err != nil {
			r.logger.Printf("[WARN] history: cannot record operation %s: %v", env.OperationID, err)
		}
	}

	err := r.db.RecordItem(ItemRecord{
		OperationID: env.OperationID,
		Seq:         env.Seq,
		Timestamp:   env.Time,
		Kind:        string(env.Event.Kind),
		Message:     env.Event.Message,
		Progress:    env.Event.Progress,
	})
	if err != nil {
		r.logger.Printf("[WARN] history: cannot record event %d of %s: %v", env.Seq, env.OperationID, err)
	}

	if env.Event.Terminal() {
		r.mu.Lock()
		delete(r.started, env.OperationID)
		r.mu.Unlock()
	}
}

// Finish stores the final result. It has the signature of deletion.Options.OnFinish.
func (r *Recorder) Finish(res deletion.Result) {
	if err := r.db.FinishOperation(res); err != nil {
		r.logger.Printf("[WARN] history: cannot finish operation %s: %v", res.ID, err)
	}
}

func (r *Recorder) firstSeen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started[id] {
		return false
	}
	r.started[id] = true
	return true
}
