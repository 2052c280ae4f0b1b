package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/async"
	"github.com/joseph-ayodele/property-verifier/internal/common"
	"github.com/joseph-ayodele/property-verifier/internal/pipeline"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

// Ingestor submits inbox files to the analysis queue.
type Ingestor struct {
	root        string
	queue       Enqueuer
	logger      *slog.Logger
	defaultType constants.DocumentType
	// path -> content hash of the last submission, so repeated fsnotify
	// events for an unchanged file are not re-queued.
	seen *lru.Cache[string, string]
}

func NewIngestor(root string, queue Enqueuer, defaultType constants.DocumentType, logger *slog.Logger) (*Ingestor, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("inbox root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	seen, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	return &Ingestor{root: abs, queue: queue, logger: logger, defaultType: defaultType, seen: seen}, nil
}

func (i *Ingestor) Root() string { return i.root }

// EnsureLayout creates one folder per document type under the root.
func (i *Ingestor) EnsureLayout() error {
	for _, dt := range constants.AllDocumentTypes() {
		if err := os.MkdirAll(filepath.Join(i.root, dt.Folder()), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// IngestPath hashes path and queues it for analysis.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	if !AllowedExt(filepath.Ext(abs)) {
		return out, fmt.Errorf("%w: unsupported or missing extension", common.ErrInvalidFileType)
	}
	docType, err := DocumentTypeFor(i.root, abs, i.defaultType)
	if err != nil {
		return out, err
	}
	out.DocumentType = docType.String()

	hash, err := storage.HashFile(abs)
	if err != nil {
		return out, err
	}
	out.HashHex = hash
	if prev, ok := i.seen.Get(abs); ok && prev == hash {
		out.Skipped = true
		return out, nil
	}

	doc := pipeline.Document{
		Path:         abs,
		Filename:     filepath.Base(abs),
		DocumentType: docType,
		SHA256:       hash,
	}
	job := async.Job{Document: doc, SubmittedAt: time.Now().UTC()}
	if err := i.queue.Enqueue(ctx, job); err != nil {
		return out, fmt.Errorf("enqueue: %w", err)
	}
	i.seen.Add(abs, hash)

	i.logger.Info("ingest.queued", "path", abs, "document_type", docType, "sha256", hash)
	return out, nil
}

// IngestDirectory walks the root, skips hidden entries if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *Ingestor) IngestDirectory(ctx context.Context, skipHidden bool) ([]IngestionResult, DirStats, error) {
	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(i.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != i.root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			i.logger.Warn("ingest.failed", "path", path, "error", err)
			return nil
		}
		results = append(results, r)
		if r.Skipped {
			stats.Skipped++
		} else {
			stats.Succeeded++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.scan.ok",
		"root", i.root,
		"matched", stats.Matched,
		"queued", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

// Run ingests everything already in the inbox, then keeps ingesting files as
// the watcher reports them until ctx is done.
func (i *Ingestor) Run(ctx context.Context, debounce time.Duration) error {
	if err := i.EnsureLayout(); err != nil {
		return err
	}
	if _, _, err := i.IngestDirectory(ctx, true); err != nil {
		return err
	}
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{i.root},
		Debounce: debounce,
		Logger:   i.logger,
	})
	if err != nil {
		return err
	}
	i.logger.Info("ingest.watching", "root", i.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if IsHidden(path) {
				continue
			}
			if _, err := i.IngestPath(ctx, path); err != nil {
				i.logger.Warn("ingest.failed", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			i.logger.Warn("ingest.watch_error", "error", err)
		}
	}
}
