package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

// Job is one document waiting for the pipeline.
type Job struct {
	Document    pipeline.Document
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor is satisfied by *pipeline.Processor.
type Processor interface {
	Process(ctx context.Context, doc pipeline.Document) (pipeline.Report, error)
}

// ResultFunc receives every finished job. It runs on the worker goroutine.
type ResultFunc func(job Job, rep pipeline.Report, err error)
