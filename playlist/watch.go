package playlist

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/sirupsen/logrus"
)

// ReadFile parses a playlist stored in stored form at path.
func ReadFile(path string) ([]BeatSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}
	return Parse(string(b))
}

// Watch calls apply with the parsed contents of path every time the file is written, until ctx is done.
// The parent directory is watched so that editors which replace the file on save are picked up. Files that
// fail to parse are logged and skipped.
func Watch(ctx context.Context, path string, apply func([]BeatSpec) error) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStackTrace(err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.WithStackTrace(err)
	}

	log := logger.GetProjectLogger().WithFields(logrus.Fields{"file": path})
	log.Info("Watching playlist file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			entries, err := ReadFile(path)
			if err != nil {
				log.WithError(err).Warn("Ignoring unreadable playlist")
				continue
			}
			if err := apply(entries); err != nil {
				log.WithError(err).Warn("Failed to apply playlist")
				continue
			}
			log.WithField("beats", len(entries)).Info("Playlist reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Playlist watcher error")
		}
	}
}
