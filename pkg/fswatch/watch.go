// Package fswatch notifies callers when files within a directory tree change.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/versync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches `root` and its subdirectories. Directories whose names match
// one of the `except` glob patterns are skipped. An event is sent on the
// returned channel whenever something within the watched directories
// changes. Bursts of changes are combined into a single event. Directories
// created after Watch returns are watched as well.
//
// The watcher is closed when `ctx` is cancelled.
func Watch(ctx context.Context, root string, except []string) (<-chan struct{}, error) {
	var matchers []glob.Glob
	for _, pattern := range except {
		matcher, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("compile %q", pattern))
		}
		matchers = append(matchers, matcher)
	}
	excluded := func(path string) bool {
		for _, matcher := range matchers {
			if matcher.Match(filepath.Base(path)) {
				return true
			}
		}
		return false
	}

	pathsToWatch, err := getDirsToWatch(root, excluded)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	go func() {
		<-ctx.Done()
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}()

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Debug("File watcher error")
		}
	}()

	return combineUpdates(watcher.Events, func(path string) {
		if excluded(path) {
			return
		}

		if fi, err := fs.Stat(path); err != nil || !fi.IsDir() {
			return
		}

		if err := watcher.Add(path); err != nil {
			log.WithError(err).WithField("path", path).Debug("Failed to watch new directory")
		}
	}), nil
}

// combineUpdates coalesces `updates` into a channel with at most one pending
// event. `onCreate` is called for every created path before the event is
// forwarded.
func combineUpdates(updates <-chan fsnotify.Event, onCreate func(string)) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for event := range updates {
			if event.Op&fsnotify.Create != 0 {
				onCreate(event.Name)
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

func getDirsToWatch(root string, excluded func(string) bool) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.New("%s is not a directory", root)
	}

	// fsnotify doesn't watch directories recursively, so we walk the tree and
	// add each subdirectory. Watching a directory covers the files directly
	// within it.
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			return nil
		}

		if path != root && excluded(path) {
			return filepath.SkipDir
		}

		paths = append(paths, path)
		return nil
	})
	return paths, err
}
