// Package log builds the logrus loggers used across the module.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvLevel names the environment variable that selects the log level.
const EnvLevel = "IMAGE_PIPELINE_LOG_LEVEL"

// GetLogger returns a new logger writing to stderr. Stdout is reserved for
// protocol traffic when running as an MCP server.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(levelFromEnv(os.Getenv(EnvLevel)))
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func levelFromEnv(v string) logrus.Level {
	if v == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(v))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
