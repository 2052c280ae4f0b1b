package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/async"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDocumentTypeFor(t *testing.T) {
	root := filepath.FromSlash("/inbox")

	dt, err := DocumentTypeFor(root, filepath.FromSlash("/inbox/Rent_Agreement/a.pdf"), "")
	require.NoError(t, err)
	assert.Equal(t, constants.RentAgreement, dt)

	dt, err = DocumentTypeFor(root, filepath.FromSlash("/inbox/noc/2026/b.png"), "")
	require.NoError(t, err)
	assert.Equal(t, constants.NOC, dt)

	_, err = DocumentTypeFor(root, filepath.FromSlash("/inbox/c.pdf"), "")
	assert.Error(t, err)

	dt, err = DocumentTypeFor(root, filepath.FromSlash("/inbox/c.pdf"), constants.TitleDeed)
	require.NoError(t, err)
	assert.Equal(t, constants.TitleDeed, dt)

	_, err = DocumentTypeFor(root, filepath.FromSlash("/elsewhere/Title_Deed/d.pdf"), "")
	assert.Error(t, err)

	_, err = DocumentTypeFor(root, filepath.FromSlash("/inbox/Invoices/e.pdf"), "")
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "Rent_Agreement", "lease.pdf"), "%PDF-1.4 lease")
	write(t, filepath.Join(root, "Title_Deed", "deed.png"), "png bytes")
	write(t, filepath.Join(root, "Title_Deed", "notes.txt"), "ignored")
	write(t, filepath.Join(root, ".hidden", "x.pdf"), "ignored")
	write(t, filepath.Join(root, "stray.pdf"), "no type folder")

	q := &fakeQueue{}
	ing, err := NewIngestor(root, q, "", nil)
	require.NoError(t, err)

	results, stats, err := ing.IngestDirectory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Len(t, results, 3)

	require.Equal(t, 2, q.len())
	byName := map[string]async.Job{}
	for _, j := range q.jobs {
		byName[j.Document.Filename] = j
	}
	assert.Equal(t, constants.RentAgreement, byName["lease.pdf"].Document.DocumentType)
	assert.Equal(t, constants.TitleDeed, byName["deed.png"].Document.DocumentType)
	assert.Len(t, byName["lease.pdf"].Document.SHA256, 64)

	// Unchanged files are not queued twice.
	_, stats, err = ing.IngestDirectory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stats.Skipped)
	assert.Equal(t, 2, q.len())

	write(t, filepath.Join(root, "Rent_Agreement", "lease.pdf"), "%PDF-1.4 lease v2")
	r, err := ing.IngestPath(context.Background(), filepath.Join(root, "Rent_Agreement", "lease.pdf"))
	require.NoError(t, err)
	assert.False(t, r.Skipped)
	assert.Equal(t, 3, q.len())
}

func TestIngestPathRejectsExtension(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "NOC", "scan.tiff")
	write(t, path, "x")

	ing, err := NewIngestor(root, &fakeQueue{}, "", nil)
	require.NoError(t, err)
	_, err = ing.IngestPath(context.Background(), path)
	assert.ErrorContains(t, err, "unsupported")
}

func TestEnsureLayout(t *testing.T) {
	root := t.TempDir()
	ing, err := NewIngestor(root, &fakeQueue{}, "", nil)
	require.NoError(t, err)
	require.NoError(t, ing.EnsureLayout())
	for _, dt := range constants.AllDocumentTypes() {
		assert.DirExists(t, filepath.Join(root, dt.Folder()))
	}
}

func TestStartWatcherEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "NOC"), 0o755))
	write(t, filepath.Join(root, "NOC", "existing.pdf"), "old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(3 * time.Second):
			t.Fatal("no watcher event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "NOC", "existing.pdf"), next())

	write(t, filepath.Join(root, "NOC", "readme.txt"), "ignored")
	write(t, filepath.Join(root, "NOC", "new.png"), "fresh")
	assert.Equal(t, filepath.Join(root, "NOC", "new.png"), next())

	cancel()
	for range events {
	}
}

func TestStartWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
