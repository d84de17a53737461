package schema

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cache entries when schema documents change on
// disk. It watches the schema directory and each connection
// subdirectory, blocking until ctx is done. Callers run it on its own
// goroutine:
//
//	go svc.Watch(ctx)
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.loader.Dir()); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.loader.Dir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(s.loader.Dir(), e.Name())); err != nil {
				s.log.Warn("schema watch: subdirectory not watched", "dir", e.Name(), "err", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("schema watch error", "err", err)
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, w *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// New connection subdirectories join the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.Add(event.Name); err != nil {
				s.log.Warn("schema watch: subdirectory not watched", "dir", event.Name, "err", err)
			}
			return
		}
	}
	model, connection, ok := s.keyFromPath(event.Name)
	if !ok {
		return
	}
	s.log.Info("schema document changed, invalidating cache",
		"model", model, "connection", connection, "op", event.Op.String())
	s.ClearCache(ctx, model, WithConnection(connection))
}

// keyFromPath derives the cache key of a document path relative to the
// schema directory: <model>.<ext> or <connection>/<model>.<ext>.
func (s *Service) keyFromPath(path string) (model, connection string, ok bool) {
	rel, err := filepath.Rel(s.loader.Dir(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	ext := filepath.Ext(rel)
	supported := false
	for _, e := range extensions {
		if ext == e {
			supported = true
			break
		}
	}
	if !supported {
		return "", "", false
	}
	rel = strings.TrimSuffix(rel, ext)
	if dir, base := filepath.Split(rel); dir != "" {
		return base, filepath.Clean(dir), true
	}
	return rel, "", true
}
