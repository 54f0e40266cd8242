package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"research-agent/internal/contextutil"
	"research-agent/internal/storage"
)

// changeKind is what a filesystem event means for the index.
type changeKind int

const (
	changeNone changeKind = iota
	changeUpsert
	changeRemove
)

// classifyEvent maps a filesystem event on a report to an index change.
// Directories, hidden files and unsupported extensions are ignored.
func classifyEvent(ev fsnotify.Event) changeKind {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || !Supported(ev.Name) {
		return changeNone
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return changeRemove
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return changeNone
		}
		return changeUpsert
	default:
		return changeNone
	}
}

// Watch re-ingests reports under dir as they change until ctx is cancelled.
// Events for one file are coalesced for debounce before acting, so a report
// still being copied is ingested once.
func (p *Pipeline) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	logger := contextutil.LoggerFromContext(ctx).With("component", "watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.InfoContext(ctx, "watching for report changes", "dir", dir)

	type debounced struct{ timer *time.Timer }
	var (
		mu      sync.Mutex
		pending = make(map[string]*debounced)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, d := range pending {
			if d.timer.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	apply := func(path string, kind changeKind, self *debounced) {
		defer wg.Done()
		mu.Lock()
		// A later event may have already replaced this timer.
		if pending[path] == self {
			delete(pending, path)
		}
		mu.Unlock()

		switch kind {
		case changeUpsert:
			if _, err := p.ingestFile(ctx, dir, path, false); err != nil {
				logger.ErrorContext(ctx, "re-ingestion failed", "path", path, "error", err)
			}
		case changeRemove:
			if _, err := os.Stat(path); err == nil {
				// Renamed over or recreated; the create event handles it.
				return
			}
			if err := p.Remove(ctx, DocumentName(dir, path)); err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.ErrorContext(ctx, "failed to remove document", "path", path, "error", err)
			} else if err == nil {
				logger.InfoContext(ctx, "removed document", "path", path)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "watcher error", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						logger.WarnContext(ctx, "failed to watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}

			kind := classifyEvent(ev)
			if kind == changeNone {
				continue
			}

			mu.Lock()
			if d, ok := pending[ev.Name]; ok && d.timer.Stop() {
				wg.Done()
			}
			path := ev.Name
			wg.Add(1)
			d := &debounced{}
			d.timer = time.AfterFunc(debounce, func() { apply(path, kind, d) })
			pending[path] = d
			mu.Unlock()
		}
	}
}
