package queue

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCancels delivers the message ID of every cancel signal that appears
// in cancel/. It combines an fsnotify watcher with a periodic sweep so a
// missed event never strands a signal; both paths funnel through the same
// channel. Blocks until ctx is done.
func (q *Queue) WatchCancels(ctx context.Context, onCancel func(messageID string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(q.cancel); err != nil {
		return err
	}

	deliver := func(id string) {
		if id == "" {
			return
		}
		onCancel(id)
	}

	// Anything already present before the watch started.
	for _, id := range q.ListCancels() {
		deliver(id)
	}

	sweep := time.NewTicker(2 * time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			deliver(strings.TrimSuffix(name, ".json"))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("queue: cancel watcher error", "error", err)
		case <-sweep.C:
			for _, id := range q.ListCancels() {
				deliver(id)
			}
		}
	}
}
