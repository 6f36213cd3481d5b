package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

// watcher follows an asset directory tree and reports created or modified
// files that map to a known asset type.
type watcher struct {
	fsnotify *fsnotify.Watcher
	onChange func(path string)

	mu       sync.Mutex
	isClosed bool
	done     chan struct{}
	stopped  chan struct{}
}

func newWatcher(onChange func(path string)) (*watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		fsnotify: fsWatch,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (w *watcher) addRecursive(name string) error {
	w.mu.Lock()
	closed := w.isClosed
	w.mu.Unlock()
	if closed {
		return errors.New("asset watcher already closed")
	}
	return w.watchRecursive(name, false)
}

func (w *watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := w.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch new directory %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && determineAssetType(e.Name) != metadata.ResourceTypeNone {
				w.onChange(e.Name)
			}
			// Can't stat a deleted directory, so just try to remove it from the watch list.
			if e.Op&fsnotify.Remove != 0 {
				_ = w.fsnotify.Remove(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-w.done:
			return
		}
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.done)
	_ = w.fsnotify.Close()
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *watcher) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if unWatch {
			return w.fsnotify.Remove(walkPath)
		}
		return w.fsnotify.Add(walkPath)
	})
}
