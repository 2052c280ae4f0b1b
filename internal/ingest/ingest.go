// Package ingest discovers documents dropped into an inbox directory and
// submits them for analysis. The inbox has one sub-directory per document
// type, named like the upload folders ("Rent_Agreement", "Title_Deed", "NOC").
package ingest

import (
	"context"

	"github.com/joseph-ayodele/property-verifier/internal/async"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	DocumentID   string
	DocumentType string
	HashHex      string
	Skipped      bool // identical content already submitted from this path
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Skipped   uint32
	Failed    uint32
}

// Enqueuer is satisfied by *async.ProcessorQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}
