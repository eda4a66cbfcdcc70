package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/module-manager/internal/infrastructure/config"
)

// Log categories. Operators read these as separate streams: with file
// output each one lands in its own rotated file.
const (
	CategoryApp              = "app"
	CategoryAuth             = "auth"
	CategoryAPI              = "api"
	CategoryMicrocontrollers = "microcontrollers"
)

// serviceName is attached to every record.
const serviceName = "module-manager"

// Logger wraps slog.Logger with category support.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	sinks *sinkSet
}

// sinkSet owns the output writers shared by a logger and its derivatives.
type sinkSet struct {
	cfg     config.LoggingConfig
	version string

	mu      sync.Mutex
	files   map[string]*lumberjack.Logger
	primary io.Writer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination (stdout, stderr, or rotated files per category)
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger writing to the "app" category
func New(cfg config.LoggingConfig, version string) *Logger {
	s := &sinkSet{
		cfg:     cfg,
		version: version,
		files:   make(map[string]*lumberjack.Logger),
	}
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		s.primary = os.Stderr
	case "file":
		// resolved per category
	default:
		s.primary = os.Stdout
	}
	return s.logger(CategoryApp)
}

// NewWithWriter creates a Logger that writes every category to w.
// Tests use it to capture output.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	s := &sinkSet{
		cfg:     cfg,
		version: version,
		files:   make(map[string]*lumberjack.Logger),
		primary: w,
	}
	return s.logger(CategoryApp)
}

func (s *sinkSet) logger(category string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(s.cfg.Level),
	}

	output := s.writer(category)

	var handler slog.Handler
	switch strings.ToLower(s.cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", s.version),
		slog.String("category", category),
	})

	return &Logger{
		Logger: slog.New(handler),
		sinks:  s,
	}
}

func (s *sinkSet) writer(category string) io.Writer {
	if s.primary != nil {
		return s.primary
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.files[category]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(s.cfg.File.Dir, category+".log"),
		MaxSize:    s.cfg.File.MaxSize,
		MaxBackups: s.cfg.File.MaxBackups,
		MaxAge:     s.cfg.File.MaxAge,
		Compress:   s.cfg.File.Compress,
	}
	s.files[category] = w
	return w
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Category returns a logger for one of the named log streams.
// Attributes added with With on the receiver are not carried over.
//
// Example:
//
//	mcLog := logger.Category(logging.CategoryMicrocontrollers)
//	mcLog.Info("New Module Created", "description", "...", "mac", mac)
func (l *Logger) Category(name string) *Logger {
	return l.sinks.logger(name)
}

// With returns a new Logger with additional default attributes.
//
// Parameters:
//   - args: Key-value pairs to add as default attributes
//
// Returns:
//   - *Logger: New logger with added attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		sinks:  l.sinks,
	}
}

// Close flushes and closes any rotated log files.
func (l *Logger) Close() error {
	l.sinks.mu.Lock()
	defer l.sinks.mu.Unlock()

	var errs []error
	for name, w := range l.sinks.files {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.sinks.files, name)
	}
	return errors.Join(errs...)
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
