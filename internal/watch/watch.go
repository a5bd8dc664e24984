// Package watch keeps the index in sync with a folder of documents.
package watch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"docsearch/internal/domain"
	"docsearch/internal/extract"
)

const DefaultDebounce = 500 * time.Millisecond

// Ingester is the indexing side of the service. Ingest replaces the chunks
// previously indexed under the same document id.
type Ingester interface {
	Ingest(ctx context.Context, documentID, rawText string) (string, error)
	Purge(ctx context.Context, documentID string) error
}

// Result reports one processed file.
type Result struct {
	Path       string
	DocumentID string
	Removed    bool
	Message    string
	Err        error
}

type Options struct {
	// Debounce delays processing until a file has been quiet this long.
	Debounce time.Duration
	// SkipExisting disables the initial indexing pass over files already present.
	SkipExisting bool
	// OnResult is called after each file is processed.
	OnResult func(Result)
	Logger   *slog.Logger
}

// Watcher indexes supported files in a directory and re-indexes them on change.
type Watcher struct {
	dir       string
	ingester  Ingester
	extractor domain.Extractor
	opts      Options
	logger    *slog.Logger
}

func New(dir string, ingester Ingester, extractor domain.Extractor, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, ingester: ingester, extractor: extractor, opts: opts, logger: logger.With("dir", dir)}
}

// DocumentID derives a stable document id from a file path.
func DocumentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	h := sha1.Sum([]byte(path))
	return "file-" + hex.EncodeToString(h[:8])
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if !w.opts.SkipExisting {
		if err := w.indexExisting(ctx); err != nil {
			return err
		}
	}

	ready := make(chan string)
	pending := map[string]*time.Timer{}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Reset(w.opts.Debounce)
				continue
			}
			pending[path] = time.AfterFunc(w.opts.Debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})
		case path := <-ready:
			delete(pending, path)
			w.process(ctx, path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return supportedFile(ev.Name)
}

func supportedFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return extract.Supported(filepath.Ext(base))
}

func (w *Watcher) indexExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !supportedFile(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	res := Result{Path: path, DocumentID: DocumentID(path)}
	defer func() {
		if res.Err != nil {
			w.logger.Error("failed to index file", "path", path, "error", res.Err)
		} else {
			w.logger.Info("file indexed", "path", path, "document_id", res.DocumentID, "removed", res.Removed)
		}
		if w.opts.OnResult != nil {
			w.opts.OnResult(res)
		}
	}()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		res.Removed = true
		res.Err = w.ingester.Purge(ctx, res.DocumentID)
		return
	}
	if err != nil {
		res.Err = err
		return
	}
	if info.IsDir() {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return
	}
	text, err := w.extractor.Extract(data, filepath.Ext(path))
	if err != nil {
		res.Err = err
		return
	}
	// Ingest replaces the previous version of the file
	res.Message, res.Err = w.ingester.Ingest(ctx, res.DocumentID, text)
}
