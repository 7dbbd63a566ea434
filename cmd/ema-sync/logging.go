package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/goerr/v2"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	return slog.New(clog.New(
		clog.WithWriter(w),
		clog.WithLevel(parseLevel(level)),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
		clog.WithAttrHook(clog.GoerrHook),
	))
}

// setupLogging installs the default logger. Flags win over the config file.
// The returned function closes the log file, if one was opened.
func setupLogging(cfg config) (*slog.Logger, func(), error) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	path := cfg.LogFile
	if logFile != "" {
		path = logFile
	}

	var (
		w       io.Writer = os.Stderr
		cleanup           = func() {}
	)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to open log file", goerr.V("path", path))
		}
		w = f
		cleanup = func() { _ = f.Close() }
	}

	logger := newLogger(level, w)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}
