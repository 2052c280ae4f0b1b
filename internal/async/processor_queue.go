package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/repository"
)

var _ Queue = (*ProcessorQueue)(nil)

type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	repo    repository.AnalysisRepository
	onDone  ResultFunc
	workers int
	timeout time.Duration

	ch   chan Job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	// senders hold the read lock; Shutdown takes the write lock to close ch.
	mu       sync.RWMutex
	closed   bool
	quitOnce sync.Once
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRepository records accepted jobs as QUEUED so they show up in the history
// before a worker picks them up.
func WithRepository(repo repository.AnalysisRepository) Option {
	return func(q *ProcessorQueue) { q.repo = repo }
}

func WithResultFunc(fn ResultFunc) Option {
	return func(q *ProcessorQueue) { q.onDone = fn }
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}

	start := time.Now()
	rep, err := q.proc.Process(ctx, job.Document)
	if err != nil {
		q.logger.Error("processing failed",
			"worker_id", workerID,
			"id", job.Document.ID,
			"document", job.Document.Filename,
			"error", err,
		)
	} else {
		q.logger.Info("processed document",
			"worker_id", workerID,
			"id", rep.ID,
			"document", job.Document.Filename,
			"cached", rep.Cached,
			"queued_ms", start.Sub(job.SubmittedAt).Milliseconds(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	if q.onDone != nil {
		q.onDone(job, rep, err)
	}
}

// Enqueue hands job to a worker, blocking while the buffer is full until ctx
// is done or the queue shuts down. The document is assigned an ID if it has
// none.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.Document.ID == uuid.Nil {
		job.Document.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	if job.Document.UploadTime.IsZero() {
		job.Document.UploadTime = job.SubmittedAt
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document", job.Document.Filename)
		return ErrClosed
	}
	q.recordQueued(ctx, job)

	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "id", job.Document.ID, "document", job.Document.Filename)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "document", job.Document.Filename)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		q.markFailed(ctx, job, ctx.Err())
		return ctx.Err()
	case <-q.quit:
		q.markFailed(ctx, job, ErrClosed)
		return ErrClosed
	}
}

func (q *ProcessorQueue) recordQueued(ctx context.Context, job Job) {
	if q.repo == nil {
		return
	}
	d := job.Document
	err := q.repo.Save(ctx, &repository.AnalysisRecord{
		ID:           d.ID,
		DocumentType: d.DocumentType,
		Filename:     d.Filename,
		SourcePath:   d.Path,
		ContentHash:  d.SHA256,
		Status:       constants.JobStatusQueued,
		CreatedAt:    d.UploadTime,
	})
	if err != nil {
		q.logger.Warn("record queued job failed", "id", d.ID, "error", err)
	}
}

// markFailed flips the QUEUED record of a job that never reached the buffer.
func (q *ProcessorQueue) markFailed(ctx context.Context, job Job, cause error) {
	if q.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	msg := "not queued: " + cause.Error()
	if err := q.repo.UpdateStatus(ctx, job.Document.ID, constants.JobStatusFailed, msg); err != nil {
		q.logger.Warn("record abandoned job failed", "id", job.Document.ID, "error", err)
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
// Producers blocked on a full buffer are released with ErrClosed.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.quitOnce.Do(func() { close(q.quit) })
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
