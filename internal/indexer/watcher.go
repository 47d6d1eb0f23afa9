package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dusk-indust/ckg/internal/ckgerr"
)

// Watcher feeds filesystem changes under a project root into an Indexer.
// Delivery is at-least-once: the queue coalesces repeats and an unchanged
// file is detected by its content hash.
type Watcher struct {
	ix        *Indexer
	projectID string
	root      string
	filter    *pathFilter
	fsw       *fsnotify.Watcher
	log       *slog.Logger
}

// NewWatcher creates a Watcher for a project registered with ix.
func NewWatcher(ix *Indexer, projectID string) (*Watcher, error) {
	root, ok := ix.Root(projectID)
	if !ok {
		return nil, ckgerr.Errorf(ckgerr.InvalidArgument, "unknown project %q", projectID)
	}
	filter, err := newPathFilter(root, ix.filter)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		ix:        ix,
		projectID: projectID,
		root:      root,
		filter:    filter,
		fsw:       fsw,
		log:       ix.log.With("project", projectID),
	}, nil
}

// Run watches until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// addRecursive watches dir and every directory below it that the filter
// keeps.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip paths with errors
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.skipDir(w.rel(p)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel := w.rel(ev.Name)
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.createdDir(ctx, ev.Name, rel)
			return
		}
		w.enqueue(ctx, rel, EventCreated)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A removed directory takes every indexed file below it along.
		if under := w.ix.resolvers.Get(w.projectID).FilesUnder(rel); len(under) > 0 {
			for _, f := range under {
				w.enqueue(ctx, f, EventDeleted)
			}
			return
		}
		w.enqueue(ctx, rel, EventDeleted)
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		w.enqueue(ctx, rel, EventModified)
	}
}

// createdDir starts watching a new directory and indexes files that were
// written into it before the watch was in place.
func (w *Watcher) createdDir(ctx context.Context, dir, rel string) {
	if w.filter.skipDir(rel) {
		return
	}
	if err := w.addRecursive(dir); err != nil {
		w.log.Warn("watch new directory", "dir", rel, "err", err)
	}
	files, err := w.filter.walk(ctx, w.root, dir)
	if err != nil {
		w.log.Warn("scan new directory", "dir", rel, "err", err)
		return
	}
	for _, f := range files {
		w.enqueue(ctx, f, EventCreated)
	}
}

func (w *Watcher) enqueue(ctx context.Context, rel string, t EventType) {
	if t == EventDeleted {
		if !w.ix.resolvers.Get(w.projectID).Has(rel) {
			return
		}
	} else if !w.filter.include(rel) {
		return
	}
	err := w.ix.Enqueue(ctx, Event{ProjectID: w.projectID, Path: rel, Type: t})
	if err != nil && !errors.Is(err, ErrShed) && !errors.Is(err, context.Canceled) {
		w.log.Warn("enqueue", "file", rel, "type", t, "err", err)
	}
}
