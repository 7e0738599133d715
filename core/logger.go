package core

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
)

var shouldPrintTraceLogs = false
var logLevel = log.InfoLevel

// InitializeLogger installs the text handler on stdout and sets the level.
// Unknown levels fall back to INFO.
func InitializeLogger(level string) {
	log.SetHandler(text.New(os.Stdout))

	var err error
	shouldPrintTraceLogs = false
	logLevel, err = log.ParseLevel(level)
	if err == nil {
		log.SetLevel(logLevel)
	} else if level == "TRACE" || level == "trace" {
		// apex has no TRACE level: log at DEBUG and filter trace lines ourselves
		logLevel = log.DebugLevel
		log.SetLevel(log.DebugLevel)
		shouldPrintTraceLogs = true
	} else {
		logLevel = log.InfoLevel
		log.SetLevel(log.InfoLevel)
	}
}

func prefix(module interface{}) string {
	return fmt.Sprintf("[%v] ", module)
}

// LogFatal logs a message at the FATAL level and exits.
func LogFatal(module interface{}, components ...interface{}) {
	log.Fatal(prefix(module) + fmt.Sprint(components...))
}

// LogError logs a message at the ERROR level.
func LogError(module interface{}, components ...interface{}) {
	if logLevel <= log.ErrorLevel {
		log.Error(prefix(module) + fmt.Sprint(components...))
	}
}

// LogWarn logs a message at the WARN level.
func LogWarn(module interface{}, components ...interface{}) {
	if logLevel <= log.WarnLevel {
		log.Warn(prefix(module) + fmt.Sprint(components...))
	}
}

// LogInfo logs a message at the INFO level.
func LogInfo(module interface{}, components ...interface{}) {
	if logLevel <= log.InfoLevel {
		log.Info(prefix(module) + fmt.Sprint(components...))
	}
}

// LogDebug logs a message at the DEBUG level.
func LogDebug(module interface{}, components ...interface{}) {
	if logLevel <= log.DebugLevel {
		log.Debug(prefix(module) + fmt.Sprint(components...))
	}
}

// LogTrace logs a message at the TRACE level (really just additional DEBUG messages).
func LogTrace(module interface{}, components ...interface{}) {
	if shouldPrintTraceLogs {
		log.Debug(prefix(module) + fmt.Sprint(components...))
	}
}

// WithFields returns an apex entry for structured key/value logging.
func WithFields(module interface{}, fields log.Fields) *log.Entry {
	fields["module"] = fmt.Sprint(module)
	return log.WithFields(fields)
}
