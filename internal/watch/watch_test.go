package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/extract"
)

type recordingIngester struct {
	mu       sync.Mutex
	ingested map[string]string
	purged   []string
}

func (r *recordingIngester) Ingest(_ context.Context, id, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested[id] = text
	return "processed document: 1 chunks", nil
}

func (r *recordingIngester) Purge(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ingested, id)
	r.purged = append(r.purged, id)
	return nil
}

func (r *recordingIngester) text(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.ingested[id]
	return t, ok
}

func startWatcher(t *testing.T, dir string) (*recordingIngester, <-chan Result) {
	t.Helper()
	ing := &recordingIngester{ingested: map[string]string{}}
	results := make(chan Result, 16)
	w := New(dir, ing, extract.New(), Options{
		Debounce: 20 * time.Millisecond,
		OnResult: func(r Result) { results <- r },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return ing, results
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for watcher result")
		return Result{}
	}
}

func TestIndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644))

	ing, results := startWatcher(t, dir)

	r := waitResult(t, results)
	require.NoError(t, r.Err)
	assert.Equal(t, DocumentID(filepath.Join(dir, "a.txt")), r.DocumentID)
	text, ok := ing.text(r.DocumentID)
	require.True(t, ok)
	assert.Equal(t, "alpha.", text)
}

func TestReindexesOnChangeAndPurgesOnRemove(t *testing.T) {
	dir := t.TempDir()
	ing, results := startWatcher(t, dir)
	path := filepath.Join(dir, "notes.md")
	id := DocumentID(path)

	// give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("first version."), 0o644))
	r := waitResult(t, results)
	require.NoError(t, r.Err)
	assert.Equal(t, id, r.DocumentID)

	require.NoError(t, os.Remove(path))
	for {
		r = waitResult(t, results)
		if r.Removed {
			break
		}
	}
	require.NoError(t, r.Err)
	_, ok := ing.text(id)
	assert.False(t, ok)
}

func TestDocumentIDIsStable(t *testing.T) {
	assert.Equal(t, DocumentID("some/file.txt"), DocumentID("some/file.txt"))
	assert.NotEqual(t, DocumentID("a.txt"), DocumentID("b.txt"))
}
