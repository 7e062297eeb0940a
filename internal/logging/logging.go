package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jjudge-oj/judgeserver/config"
	"github.com/sirupsen/logrus"
)

// New builds the process logger from config. Format is "text" (logrus's
// default) or "json".
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level := logrus.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		// retain logrus's default.
	case "json":
		logger.SetFormatter(new(logrus.JSONFormatter))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
