package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

func setupLogger(level, format, file string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	var out io.Writer = os.Stdout
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	if format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(out, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    file != "",
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
