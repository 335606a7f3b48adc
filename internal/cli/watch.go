// runWatchConfig implements --watch-config: a diagnostic that reports
// changes to files in the config file's directory without reloading them. This only observes and
// logs; it never calls ddconfig.Load again while a daemon would be
// running, so it reinforces the no-hot-reload rule rather than working
// around it.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wozt/goofydeck-sub000/internal/watcher"
)

func runWatchConfig(ctx context.Context, f Flags) error {
	fmt.Fprintf(os.Stderr, "watching %s (reporting only, not reloading)\n", f.ConfigPath)

	w, err := watcher.New(func(events []watcher.Event) {
		for _, e := range events {
			fmt.Fprintf(os.Stderr, "config changed: %s (type=%d)\n", e.Path, e.Type)
		}
		fmt.Fprintln(os.Stderr, "note: goofydeck does not hot-reload; restart to apply")
	}, watcher.WithEventFilter(watcher.Write|watcher.Create|watcher.Rename))
	if err != nil {
		return fmt.Errorf("watch-config: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.ConfigPath)); err != nil {
		return fmt.Errorf("watch-config: %w", err)
	}

	<-ctx.Done()
	return nil
}
