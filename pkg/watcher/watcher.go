// Package watcher reports edits of the parameter file so a run can be
// restarted with the new values.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/angioflow/pkg/logging"
)

// batchWindow groups the burst of events one save produces.
const batchWindow = 100 * time.Millisecond

// ChangeType says what happened to the parameter file.
type ChangeType int

const (
	ChangeTypeWritten ChangeType = iota // created, written or renamed into place
	ChangeTypeRemoved
)

func (c ChangeType) String() string {
	if c == ChangeTypeRemoved {
		return "removed"
	}
	return "written"
}

// ChangeEvent is one batch of changes to the watched file.
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches one parameter file. The parent directory is watched
// so that editors replacing the file by rename are still seen.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for the file at path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: w,
		path:    abs,
		events:  make(chan ChangeEvent, 16),
	}, nil
}

// Start begins watching. Events stop and the channel closes when ctx ends.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("watching parameter file", "path", fw.path)
	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	var pending []string
	var kind ChangeType
	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			t, relevant := classify(event, fw.path)
			if !relevant {
				continue
			}
			logging.Trace("parameter file event", "op", event.Op.String(), "path", event.Name)
			pending = append(pending, event.Name)
			kind = t
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			if len(pending) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: kind, Paths: pending, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
			pending = nil

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events delivers the batched changes.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Path returns the absolute path being watched.
func (fw *FileWatcher) Path() string { return fw.path }
