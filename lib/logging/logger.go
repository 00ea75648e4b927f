// Package logging provides logging utilities for the application
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// facility names used across tKV
const (
	FacilityTxn   = "txn"
	FacilityStore = "store"
	FacilityDB    = "db"
	FacilityFetch = "fetch"
	FacilityCLI   = "cli"
)

// --------------------------------------------------------------------------
// Custom Logger (implements logger.ILogger)
// --------------------------------------------------------------------------

// tKVLogger implements the ILogger interface with custom formatting
type tKVLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *tKVLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *tKVLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *tKVLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *tKVLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *tKVLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *tKVLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *tKVLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// output is the sink new loggers write to. Tests swap it for a buffer.
var output io.Writer = os.Stdout

// SetOutput redirects all loggers created afterwards to w.
// It is meant for tests and must be called before GetLogger.
func SetOutput(w io.Writer) {
	output = w
}

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(output, "", log.Ldate|log.Ltime)

	return &tKVLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// GetLogger returns the logger for the given facility name.
func GetLogger(name string) logger.ILogger {
	return logger.GetLogger(name)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom logger factory and sets the level of all
// tKV facilities. It should be called once during startup, before any
// facility is used.
func InitLoggers(logLevel string) {
	logger.SetLoggerFactory(CreateLogger)

	logger.GetLogger(FacilityTxn).SetLevel(parseLogLevel(logLevel))
	logger.GetLogger(FacilityStore).SetLevel(parseLogLevel(logLevel))
	logger.GetLogger(FacilityDB).SetLevel(parseLogLevel(logLevel))
	logger.GetLogger(FacilityFetch).SetLevel(parseLogLevel(logLevel))
	logger.GetLogger(FacilityCLI).SetLevel(parseLogLevel(logLevel))
}
