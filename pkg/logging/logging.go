// Package logging builds the logrus logger shared by every Nexus component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/nexus/pkg/config"
)

// New returns a logger configured from cfg, plus a closer for file outputs.
func New(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	closer, err := Configure(logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return logger, closer, nil
}

// Configure applies level, format and output to logger. The returned closer
// releases a log file and is a no-op for stdout and stderr.
func Configure(logger *logrus.Logger, cfg config.LoggingConfig) (io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		logger.SetOutput(os.Stderr)
	case "stdout":
		logger.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
		return f, nil
	}
	return nopCloser{}, nil
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
// An empty level means info.
func ParseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return logrus.ParseLevel(s)
	}
	return logrus.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
