// Package logging sets up the logrus logger shared by the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger with per-key rate limiting.
type Logger struct {
	*logrus.Logger
	throttledLogs map[string]time.Time
	throttleMutex sync.Mutex
}

// NewLogger builds a logger. level is one of debug/info/warn/error, format is
// "json" or "text". When logDir is set, output is also appended to a
// timestamped file named after the tool.
func NewLogger(tool, level, format, logDir string) *Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var output io.Writer = os.Stderr
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err == nil {
			timestamp := time.Now().Format("20060102_150405")
			logFilePath := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", tool, timestamp))
			file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				output = io.MultiWriter(os.Stderr, file)
			}
		}
	}
	logger.SetOutput(output)

	return &Logger{
		Logger:        logger,
		throttledLogs: make(map[string]time.Time),
	}
}

// InfoThrottled logs at most once per interval for a given key.
func (l *Logger) InfoThrottled(key string, interval time.Duration, message string, fields logrus.Fields) {
	if !l.allow(key, interval) {
		return
	}
	l.WithFields(fields).Info(message)
}

func (l *Logger) allow(key string, interval time.Duration) bool {
	l.throttleMutex.Lock()
	defer l.throttleMutex.Unlock()
	now := time.Now()
	if last, ok := l.throttledLogs[key]; ok && now.Sub(last) < interval {
		return false
	}
	l.throttledLogs[key] = now
	return true
}
