package internal

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the JSON logger. Output goes to w and, when file is set,
// also to a size-rotated log file. The returned closer releases the file.
func newLogger(w io.Writer, file string, level *slog.LevelVar) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
