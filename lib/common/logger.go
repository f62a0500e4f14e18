// Package common provides logging and configuration shared by all dRef packages
package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// Names of the loggers used throughout the module
const (
	LoggerRef        = "ref"
	LoggerProcessor  = "processor"
	LoggerCollection = "collection"
	LoggerRefMap     = "refmap"
	LoggerSerial     = "serial"
	LoggerCmd        = "cmd"
)

// --------------------------------------------------------------------------
// Package loggers (dragonboat logger.ILogger)
// --------------------------------------------------------------------------

var (
	// output is shared by all loggers so SetOutput redirects them at once
	output atomic.Pointer[log.Logger]

	mu           sync.Mutex
	loggers      = make(map[string]*pkgLogger)
	defaultLevel = logger.WARNING
)

func init() {
	output.Store(log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds))
	logger.SetLoggerFactory(CreateLogger)
}

// pkgLogger writes "LEVEL | package | message" lines. The level may be changed
// while sweeps of a background processor are logging.
type pkgLogger struct {
	name  string
	level atomic.Int32
}

func (l *pkgLogger) SetLevel(level logger.LogLevel) { l.level.Store(int32(level)) }

func (l *pkgLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *pkgLogger) emit(level logger.LogLevel, format string, args []interface{}) {
	if l.enabled(level) {
		output.Load().Printf("%-5s | %-10s | %s", levelTag(level), l.name, fmt.Sprintf(format, args...))
	}
}

func (l *pkgLogger) Debugf(format string, args ...interface{}) {
	l.emit(logger.DEBUG, format, args)
}

func (l *pkgLogger) Infof(format string, args ...interface{}) {
	l.emit(logger.INFO, format, args)
}

func (l *pkgLogger) Warningf(format string, args ...interface{}) {
	l.emit(logger.WARNING, format, args)
}

func (l *pkgLogger) Errorf(format string, args ...interface{}) {
	l.emit(logger.ERROR, format, args)
}

// Panicf logs at any level and panics with the message
func (l *pkgLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	output.Load().Printf("%-5s | %-10s | %s", "PANIC", l.name, msg)
	panic(msg)
}

func levelTag(level logger.LogLevel) string {
	switch level {
	case logger.DEBUG:
		return "DEBUG"
	case logger.INFO:
		return "INFO"
	case logger.WARNING:
		return "WARN"
	case logger.ERROR:
		return "ERROR"
	default:
		return "CRIT"
	}
}

// CreateLogger is the dragonboat logger factory. Every logger created through
// it is remembered, so InitLoggers also reaches loggers of packages that were
// initialized earlier.
func CreateLogger(pkgName string) logger.ILogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[pkgName]; ok {
		return l
	}
	l := &pkgLogger{name: pkgName}
	l.SetLevel(defaultLevel)
	loggers[pkgName] = l
	return l
}

// SetOutput redirects all loggers to w
func SetOutput(w io.Writer) {
	output.Store(log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds))
}

// ParseLogLevel converts debug, info, warn(ing) or error to a logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level %q, must be one of debug, info, warn, error", level)
	}
}

// InitLoggers sets the level of every logger, including loggers created later
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	defaultLevel = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
	return nil
}
