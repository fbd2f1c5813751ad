package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// WriteJob represents a unit of work to execute against the database.
type WriteJob interface {
	Execute(ctx context.Context, db DB) error
}

// WriteJobFunc adapts a function into a WriteJob.
type WriteJobFunc func(ctx context.Context, db DB) error

func (f WriteJobFunc) Execute(ctx context.Context, db DB) error {
	return f(ctx, db)
}

// BatchWriter collects write jobs and flushes them in batches, off the
// exchange's hot path.
type BatchWriter struct {
	db        DB
	jobs      chan WriteJob
	batchSize int
	flushMs   int
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewBatchWriter(db DB, bufferSize, batchSize, flushMs int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushMs <= 0 {
		flushMs = 100
	}
	w := &BatchWriter{
		db:        db,
		jobs:      make(chan WriteJob, bufferSize),
		batchSize: batchSize,
		flushMs:   flushMs,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Enqueue never blocks; jobs are dropped with a warning when the queue is full
// or the writer has been shut down.
func (w *BatchWriter) Enqueue(job WriteJob) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		log.Warn().Msg("write queue closed, dropping job")
		return
	}
	select {
	case w.jobs <- job:
	default:
		log.Warn().Msg("write queue full, dropping job")
	}
}

func (w *BatchWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Duration(w.flushMs) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]WriteJob, 0, w.batchSize)

	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, job)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *BatchWriter) flush(batch []WriteJob) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, job := range batch {
		if err := job.Execute(ctx, w.db); err != nil {
			log.Error().Err(err).Msg("write job failed")
		}
	}
}

// Shutdown flushes queued jobs and stops the writer. Later jobs are dropped.
func (w *BatchWriter) Shutdown() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
