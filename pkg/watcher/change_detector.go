package watcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// classify maps a raw fsnotify event to a change of the file at path.
// Chmod-only events and other files in the directory are ignored.
func classify(event fsnotify.Event, path string) (ChangeType, bool) {
	if filepath.Clean(event.Name) != path {
		return 0, false
	}
	switch {
	case event.Has(fsnotify.Remove):
		return ChangeTypeRemoved, true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
		return ChangeTypeWritten, true
	}
	return 0, false
}

// ChangeAnalysis says what a batch of changes means for the running simulation.
type ChangeAnalysis struct {
	Rerun        bool // reload the parameters and restart the run
	KeepCurrent  bool // the file is gone; keep the current run going
	ChangedFiles []string
}

// AnalyzeChanges decides how to react to a debounced change event.
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{ChangedFiles: event.Paths}
	switch event.Type {
	case ChangeTypeWritten:
		analysis.Rerun = true
	case ChangeTypeRemoved:
		analysis.KeepCurrent = true
	}
	return analysis
}
