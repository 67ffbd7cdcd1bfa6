package store

import (
	"sync"
	"time"

	"github.com/planforge/collabd/internal/logging"
	"github.com/planforge/collabd/internal/models"
)

// Writer decouples the commit path from disk: saves are enqueued and
// drained by one background goroutine, so network handlers never block on
// SQLite. Failed writes retry with backoff before being dropped with an
// error log; the in-memory log remains authoritative either way.
type Writer struct {
	store      *SQLiteStore
	queue      chan writeOp
	maxRetries int
	backoff    time.Duration

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

type writeOp struct {
	session  *models.SessionInfo
	change   *models.Change
	conflict *models.EditConflict
}

// WriterConfig holds async writer tuning.
type WriterConfig struct {
	QueueSize  int
	MaxRetries int
	Backoff    time.Duration
}

// DefaultWriterConfig returns the default writer tuning.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:  1024,
		MaxRetries: 3,
		Backoff:    250 * time.Millisecond,
	}
}

// NewWriter creates and starts an async writer over the store.
func NewWriter(store *SQLiteStore, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultWriterConfig().QueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultWriterConfig().MaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultWriterConfig().Backoff
	}
	w := &Writer{
		store:      store,
		queue:      make(chan writeOp, cfg.QueueSize),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		stopCh:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.drain()
	return w
}

// SaveSession enqueues session metadata for persistence.
func (w *Writer) SaveSession(info *models.SessionInfo) error {
	copied := *info
	w.enqueue(writeOp{session: &copied})
	return nil
}

// SaveChange enqueues a change for persistence.
func (w *Writer) SaveChange(c *models.Change) error {
	copied := *c
	w.enqueue(writeOp{change: &copied})
	return nil
}

// SaveConflict enqueues a conflict record for persistence.
func (w *Writer) SaveConflict(c *models.EditConflict) error {
	copied := *c
	copied.ChangeIDs = append([]models.UUID(nil), c.ChangeIDs...)
	w.enqueue(writeOp{conflict: &copied})
	return nil
}

func (w *Writer) enqueue(op writeOp) {
	select {
	case w.queue <- op:
	default:
		// Queue full: apply inline rather than losing the write.
		w.apply(op)
	}
}

func (w *Writer) drain() {
	defer w.wg.Done()
	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.stopCh:
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) apply(op writeOp) {
	var err error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.backoff * time.Duration(attempt))
		}
		switch {
		case op.session != nil:
			err = w.store.SaveSession(op.session)
		case op.change != nil:
			err = w.store.SaveChange(op.change)
		case op.conflict != nil:
			err = w.store.SaveConflict(op.conflict)
		}
		if err == nil {
			return
		}
	}
	logging.Error("async write dropped after retries", err, logging.Fields{
		"retries": w.maxRetries,
	})
}

// Close drains outstanding writes and stops the writer.
func (w *Writer) Close() {
	w.once.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}
