package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	AppLogger      *log.Logger
	UpstreamLogger *log.Logger
	ErrorLogger    *log.Logger

	mu              sync.RWMutex
	logLevel        string
	appLogFile      *os.File
	upstreamLogFile *os.File
	initialized     bool
)

var levelRank = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

// openLogWriter opens path for appending, falling back to io.Discard when the directory or
// file cannot be created.
func openLogWriter(path, name string) (io.Writer, *os.File, string) {
	if path == "" {
		return io.Discard, nil, "(discarded)"
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create %s log directory %s: %v. %s logs (Info/Debug) will be discarded.", name, dir, err, name)
		return io.Discard, nil, "(discarded)"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		ErrorLogger.Printf("Failed to open %s log file %s: %v. %s logs (Info/Debug) will be discarded.", name, path, err, name)
		return io.Discard, nil, "(discarded)"
	}
	return f, f, path
}

// InitGlobalLoggers (re)opens the app and upstream log files and sets the level.
// An empty path discards that channel's Info/Debug output; errors always reach stderr.
func InitGlobalLoggers(appLogPath, upstreamLogPath, level string) error {
	mu.Lock()
	defer mu.Unlock()

	normalized := strings.ToUpper(level)
	if normalized == "" {
		normalized = "INFO"
	}
	if _, ok := levelRank[normalized]; !ok {
		normalized = "INFO"
	}
	if initialized && appLogFile != nil && upstreamLogFile != nil && normalized == logLevel {
		return nil
	}
	closeFilesLocked()

	logLevel = normalized
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	appWriter, appFile, actualAppLogPath := openLogWriter(appLogPath, "App")
	appLogFile = appFile
	AppLogger = log.New(appWriter, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)

	upWriter, upFile, actualUpstreamLogPath := openLogWriter(upstreamLogPath, "Upstream")
	upstreamLogFile = upFile
	UpstreamLogger = log.New(upWriter, "UPSTREAM: ", log.Ldate|log.Ltime|log.Lshortfile)

	if !initialized {
		AppLogger.Printf("App logger initialized. Log level: %s. Output file: %s", logLevel, actualAppLogPath)
		UpstreamLogger.Printf("Upstream logger initialized. Log level: %s. Output file: %s", logLevel, actualUpstreamLogPath)
	}
	initialized = true
	return nil
}

// SetOutput points every logger at w. Used by tests and one-shot CLI commands.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	closeFilesLocked()
	logLevel = strings.ToUpper(level)
	if _, ok := levelRank[logLevel]; !ok {
		logLevel = "INFO"
	}
	AppLogger = log.New(w, "APP: ", 0)
	UpstreamLogger = log.New(w, "UPSTREAM: ", 0)
	ErrorLogger = log.New(w, "ERROR: ", 0)
	initialized = true
}

// Level returns the active log level.
func Level() string {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

func enabled(level string) bool {
	current, ok := levelRank[logLevel]
	if !ok {
		current = levelRank["INFO"]
	}
	return levelRank[level] >= current
}

func Info(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if AppLogger != nil && enabled("INFO") {
		AppLogger.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if AppLogger != nil && enabled("DEBUG") {
		AppLogger.Printf(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if AppLogger != nil && enabled("WARN") {
		AppLogger.Printf("WARN: "+format, v...)
	}
}

func Error(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if AppLogger != nil && appLogFile != nil {
		AppLogger.Print(message)
	}
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Fatal(message)
	} else {
		log.Fatal(message)
	}
}

func UpstreamInfo(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if UpstreamLogger != nil && enabled("INFO") {
		UpstreamLogger.Printf(format, v...)
	}
}

func UpstreamDebug(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if UpstreamLogger != nil && enabled("DEBUG") {
		UpstreamLogger.Printf(format, v...)
	}
}

func UpstreamError(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil { // All errors go to stderr via ErrorLogger
		ErrorLogger.Print(message)
	}
	if UpstreamLogger != nil && upstreamLogFile != nil {
		UpstreamLogger.Print(message)
	}
}

func closeFilesLocked() {
	if appLogFile != nil {
		AppLogger.Println("Closing app log file.")
		appLogFile.Close()
		appLogFile = nil
	}
	if upstreamLogFile != nil {
		UpstreamLogger.Println("Closing upstream log file.")
		upstreamLogFile.Close()
		upstreamLogFile = nil
	}
}

func CloseLogFiles() {
	mu.Lock()
	defer mu.Unlock()
	closeFilesLocked()
	initialized = false // Allow re-initialization (e.g. tests)
}
