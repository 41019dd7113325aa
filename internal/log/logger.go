// Package log configures the process-wide logrus logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/mediatx/internal/config"
)

const defaultTimeLayout = "2006-01-02 15:04:05.000"

var (
	mu     sync.Mutex
	output *MultiWriter
)

// Init configures the logrus standard logger from cfg. It may be called
// again; the previous outputs are closed once the new ones are installed.
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var f logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		f = &logrus.JSONFormatter{TimestampFormat: defaultTimeLayout}
	case "text":
		f = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: defaultTimeLayout}
	case "pattern":
		f = newPatternFormatter(cfg.Pattern, defaultTimeLayout)
	default:
		return fmt.Errorf("unsupported log format: %s (must be json, text or pattern)", cfg.Format)
	}

	// stdout is always included, hidden behind a plain Writer so Close leaves it open.
	w := NewMultiWriter().Add(struct{ io.Writer }{os.Stdout})

	if cfg.Outputs.File.Enabled {
		fw, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return fmt.Errorf("failed to create file output: %w", err)
		}
		w.Add(fw)
	}

	mu.Lock()
	prev := output
	output = w
	logrus.SetLevel(level)
	logrus.SetFormatter(f)
	logrus.SetReportCaller(strings.EqualFold(cfg.Format, "pattern"))
	logrus.SetOutput(w)
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close flushes and closes the file outputs installed by Init and points the
// logger back at stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if output == nil {
		return nil
	}
	logrus.SetOutput(os.Stderr)
	err := output.Close()
	output = nil
	return err
}

func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "trace":
		return logrus.TraceLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (io.WriteCloser, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}
