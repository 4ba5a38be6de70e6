package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/notesapp/pkg/config"
)

const reloadDebounce = 200 * time.Millisecond

// watchConfig re-reads the config file whenever it changes and applies the
// settings that can change at runtime. Only app.log_level is hot; other
// changes are logged and need a restart. It returns when ctx is done.
//
// The parent directory is watched so that editors which replace the file
// by rename are still seen.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-timerCh:
			timerCh = nil
			applyConfig(abs, level, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher: error", slog.String("error", werr.Error()))
		}
	}
}

func applyConfig(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		logger.Warn("config reload failed", slog.String("error", err.Error()))
		return
	}
	if old := level.Level(); old != cfg.App.LogLevel {
		level.Set(cfg.App.LogLevel)
		logger.Info("log level changed",
			slog.String("from", old.String()),
			slog.String("to", cfg.App.LogLevel.String()))
	}
}
