// Package logging provides categorized file-based logging for toolgate.
// Logs are written to the configured directory with separate files per
// category. When debug mode is off the whole package is a silent no-op, so
// call sites never guard their log statements.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup and wiring
	CategorySelector  Category = "selector"  // tool selection decisions
	CategoryInference Category = "inference" // parameter inference rules
	CategoryValidate  Category = "validate"  // unified validation
	CategoryExecutor  Category = "executor"  // tool execution
	CategoryRecovery  Category = "recovery"  // recovery strategies, breaker
	CategoryErrors    Category = "errors"    // error manager
	CategoryTools     Category = "tools"     // tool registry
	CategoryStore     Category = "store"     // audit store
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options configures the logging system. Unlike the log consumers, this is
// wired once at startup from the config package.
type Options struct {
	Dir        string
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	opts     Options
	logLevel = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at startup.
// With DebugMode false this is a silent no-op.
func Initialize(o Options) error {
	mu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	mu.Unlock()

	if !o.DebugMode {
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("logging directory required in debug mode")
	}
	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== toolgate logging initialized ===")
	boot.Info("Logs directory: %s", o.Dir)
	boot.Info("Level: %s", o.Level)
	return nil
}

// Close flushes and closes all open log files.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, ok := opts.Categories[string(category)]
	if !ok {
		return true // enabled by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	path := filepath.Join(opts.Dir, fmt.Sprintf("%s.log", category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Fall back to a no-op logger rather than failing the caller.
		l = &Logger{category: category}
		loggers[category] = l
		return l
	}

	l = &Logger{
		category: category,
		logger:   log.New(file, "", log.LstdFlags|log.Lmicroseconds),
		file:     file,
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, prefix, format string, args ...interface{}) {
	if l.logger == nil || level < logLevel {
		return
	}
	l.logger.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Category convenience helpers. Info-level by default, Debug variants for
// high-volume diagnostics.

func Boot(format string, args ...interface{})           { Get(CategoryBoot).Info(format, args...) }
func Selector(format string, args ...interface{})       { Get(CategorySelector).Info(format, args...) }
func SelectorDebug(format string, args ...interface{})  { Get(CategorySelector).Debug(format, args...) }
func Inference(format string, args ...interface{})      { Get(CategoryInference).Info(format, args...) }
func InferenceDebug(format string, args ...interface{}) { Get(CategoryInference).Debug(format, args...) }
func Validate(format string, args ...interface{})       { Get(CategoryValidate).Info(format, args...) }
func ValidateDebug(format string, args ...interface{})  { Get(CategoryValidate).Debug(format, args...) }
func Executor(format string, args ...interface{})       { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{})  { Get(CategoryExecutor).Debug(format, args...) }
func Recovery(format string, args ...interface{})       { Get(CategoryRecovery).Info(format, args...) }
func RecoveryDebug(format string, args ...interface{})  { Get(CategoryRecovery).Debug(format, args...) }
func Errors(format string, args ...interface{})         { Get(CategoryErrors).Info(format, args...) }
func Tools(format string, args ...interface{})          { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{})     { Get(CategoryTools).Debug(format, args...) }
func Store(format string, args ...interface{})          { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})     { Get(CategoryStore).Debug(format, args...) }
