package monitor

import (
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/fsnotify/fsnotify"
)

// statusWatcher watches the directory containing the status file. The
// harness writes the file by temp-and-rename, so watching the file itself
// would lose the watch on every update.
type statusWatcher struct {
	watcher *fsnotify.Watcher
	target  string
}

func newStatusWatcher(statusPath string) (*statusWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(statusPath)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &statusWatcher{watcher: watcher, target: filepath.Base(statusPath)}, nil
}

// waitCmd blocks until an event for the status file (or a watcher error)
// arrives, then emits statusChangedMsg. Re-issued from Update after each
// delivery.
func (w *statusWatcher) waitCmd() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) == w.target {
					return statusChangedMsg{}
				}
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return nil
				}
				return statusChangedMsg{}
			}
		}
	}
}

func (w *statusWatcher) Close() error {
	if w == nil || w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
