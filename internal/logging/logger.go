package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"netglobe/internal/models"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

var (
	Logger *logrus.Logger
	once   sync.Once
)

// Config controls where and how logs are written.
type Config struct {
	Dir    string `yaml:"dir" env:"DIR"`
	Level  string `yaml:"level" env:"LEVEL"`
	Stderr bool   `yaml:"stderr" env:"STDERR"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// DefaultLogDir is used when no log directory is configured.
func DefaultLogDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "netglobe", "logs")
	}
	return filepath.Join(os.TempDir(), "netglobe", "logs")
}

// LogDir returns the directory logs would be written to for cfg.
func LogDir(cfg Config) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	return DefaultLogDir()
}

// SetupLogger initializes logrus with log rotation and date-based log file naming.
func SetupLogger(cfg Config) error {
	dir := LogDir(cfg)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	logFilePath := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")

	var out io.Writer = &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	if cfg.Stderr {
		out = io.MultiWriter(out, os.Stderr)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{PrettyPrint: cfg.Pretty})
	l.SetLevel(level)

	Logger = l
	return nil
}

// GetLogger returns the global logger. Before SetupLogger runs it returns a
// stderr logger at warn level so library code can always log.
func GetLogger() *logrus.Logger {
	if Logger != nil {
		return Logger
	}
	once.Do(func() {
		if Logger == nil {
			l := logrus.New()
			l.SetOutput(os.Stderr)
			l.SetLevel(logrus.WarnLevel)
			Logger = l
		}
	})
	return Logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// LogEnriched logs an accepted, geolocated connection.
func LogEnriched(l *logrus.Logger, ev models.EnrichedEvent) {
	if l == nil {
		l = GetLogger()
	}
	l.WithFields(logrus.Fields{
		"process":  ev.Process,
		"category": ev.Category,
		"src":      fmt.Sprintf("%s:%d", ev.SourceAddr, ev.SourcePort),
		"dst":      fmt.Sprintf("%s:%d", ev.DestAddr, ev.DestPort),
		"status":   ev.Location.Status,
		"country":  ev.Location.Country,
		"city":     ev.Location.City,
	}).Info("Connection")
}

// LogCaptureFallback records a switch between capture strategies.
func LogCaptureFallback(l *logrus.Logger, from, to, reason string) {
	if l == nil {
		l = GetLogger()
	}
	l.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Warn("Capture fallback")
}
