// Package logging provides categorized file-based debug logging for taskrag.
// Logs are written under <data>/logs/ with a separate file per category.
// When debug mode is off the whole package is a silent no-op, so hot paths can
// log freely without guarding call sites.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Process startup, config resolution
	CategoryServer    Category = "server"    // HTTP request handling
	CategoryEmbedding Category = "embedding" // Embedding engine calls
	CategoryIndex     Category = "index"     // Vector index reads/writes
	CategoryIngest    Category = "ingest"    // Knowledge-base ingestion
	CategoryRetrieval Category = "retrieval" // Query construction and selection
	CategoryLLM       Category = "llm"       // LLM API calls
	CategoryPipeline  Category = "pipeline"  // End-to-end orchestration
)

// Options controls logging behavior. Zero value means disabled.
type Options struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error (default info)
	Categories map[string]bool // nil means all categories enabled
	JSONFormat bool            // structured JSON lines instead of text
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// StructuredLogEntry is the JSON line format used when Options.JSONFormat is set.
type StructuredLogEntry struct {
	Timestamp int64  `json:"ts"` // Unix milliseconds
	Category  string `json:"cat"`
	Level     string `json:"lvl"`
	Message   string `json:"msg"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Initialize sets up the logging directory and options. Should be called once
// at startup with the data directory; safe to skip entirely (logging stays off).
func Initialize(dataDir string, o Options) error {
	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.DebugMode {
		return nil // Silent no-op in production mode
	}
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== taskrag logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if opts.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if opts.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if opts.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always written if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if opts.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// CloseAll closes all open log files. Call on shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - one Info/Debug pair per category
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category.
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Server logs to the server category.
func Server(format string, args ...interface{}) { Get(CategoryServer).Info(format, args...) }

// ServerDebug logs debug to the server category.
func ServerDebug(format string, args ...interface{}) { Get(CategoryServer).Debug(format, args...) }

// Embedding logs to the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs debug to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Index logs to the index category.
func Index(format string, args ...interface{}) { Get(CategoryIndex).Info(format, args...) }

// IndexDebug logs debug to the index category.
func IndexDebug(format string, args ...interface{}) { Get(CategoryIndex).Debug(format, args...) }

// Ingest logs to the ingest category.
func Ingest(format string, args ...interface{}) { Get(CategoryIngest).Info(format, args...) }

// IngestDebug logs debug to the ingest category.
func IngestDebug(format string, args ...interface{}) { Get(CategoryIngest).Debug(format, args...) }

// Retrieval logs to the retrieval category.
func Retrieval(format string, args ...interface{}) { Get(CategoryRetrieval).Info(format, args...) }

// RetrievalDebug logs debug to the retrieval category.
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// LLM logs to the llm category.
func LLM(format string, args ...interface{}) { Get(CategoryLLM).Info(format, args...) }

// LLMDebug logs debug to the llm category.
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// =============================================================================
// PERFORMANCE TIMING
// =============================================================================

// Timer measures operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
