package logs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/smithy-go/logging"
	"github.com/lmittmann/tint"
)

const LogFile = "cloudshovel.log"

// Logger returns the AWS SDK logger. SDK output goes to LogFile as JSON so
// retry chatter stays off the console.
func Logger() logging.Logger {
	return fileLogger(LogFile)
}

func fileLogger(path string) logging.Logger {
	return logging.LoggerFunc(func(classification logging.Classification, format string, v ...interface{}) {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return
		}
		defer f.Close()

		logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		msg := fmt.Sprintf(format, v...)
		switch classification {
		case logging.Warn:
			logger.Warn(msg, "source", "aws-sdk")
		default:
			logger.Debug(msg, "source", "aws-sdk")
		}
	})
}

// ParseLevel maps a --log-level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// ConsoleLogger builds the stderr logger and installs it as the slog default.
func ConsoleLogger(level slog.Level, noColor bool) *slog.Logger {
	logger := slog.New(NewContextHandler(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})))
	slog.SetDefault(logger)
	return logger
}

// NewStageLogger returns the default logger tagged with the stage name.
func NewStageLogger(ctx context.Context, stage string) *slog.Logger {
	return slog.Default().With("stage", stage)
}
