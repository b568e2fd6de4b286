package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.RWMutex
	logg = New("info", os.Stdout)
)

// New builds a JSON logger writing to out. Unknown levels fall back to info.
func New(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(out)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// L returns the process-wide logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logg
}

func SetDefault(logger *logrus.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	logg = logger
	mu.Unlock()
}

func LogError(logger *logrus.Logger, module string, funcName string, context string, data any, err error) {
	if logger == nil || err == nil {
		return
	}
	fields := logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
