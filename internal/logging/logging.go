package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the logging surface handed to every component.
type Logger interface {
	logrus.FieldLogger
}

type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var root = struct {
	mu     sync.Mutex
	logger *logrus.Logger
}{
	logger: logrus.New(),
}

// New returns a logger tagged with the given component name.
func New(component string) Logger {
	root.mu.Lock()
	defer root.mu.Unlock()
	return root.logger.WithField("component", component)
}

// Root exposes the process logger, mostly so tests can attach hooks.
func Root() *logrus.Logger {
	return root.logger
}

func Configure(cfg Config) error {
	root.mu.Lock()
	defer root.mu.Unlock()

	level := logrus.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		l, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return err
	}
	out, err := newOutput(cfg)
	if err != nil {
		return err
	}

	root.logger.SetLevel(level)
	root.logger.SetFormatter(formatter)
	root.logger.SetOutput(out)
	return nil
}

// SetLevel changes the level without touching the formatter or output.
func SetLevel(lvl string) error {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", lvl, err)
	}
	root.mu.Lock()
	root.logger.SetLevel(l)
	root.mu.Unlock()
	return nil
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		}, nil
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newOutput(cfg Config) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			return nil, fmt.Errorf("log file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}
