package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerConfig interface {
	LogLevel() slog.Level
	LogFile() string
}

// NewLogger creates the root JSON logger. When a log file is configured the
// output goes to both stdout and the rotated file.
//
// The returned close function flushes and closes the log file, if any.
func NewLogger(config LoggerConfig) (*slog.Logger, func() error) {
	var writer io.Writer = os.Stdout
	closeFunc := func() error { return nil }

	if config.LogFile() != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   config.LogFile(),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, fileWriter)
		closeFunc = fileWriter.Close
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: config.LogLevel()})
	return slog.New(NewTracingLogHandler(handler)), closeFunc
}
