package utils

import (
	"log"
)

const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

var logLevel = LogLevelInfo // Set default log level

var logIngest = false
var logProcessing = false

func init() {
	InitVar("TRACKING_LOG_LEVEL", &logLevel)
	InitVar("TRACKING_LOG_INGEST", &logIngest)
	InitVar("TRACKING_LOG_PROCESSING", &logProcessing)
}

func SetLogLevel(level int) {
	logLevel = level
}

func Debugf(format string, args ...interface{}) {
	if logLevel <= LogLevelDebug {
		log.Printf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if logLevel <= LogLevelInfo {
		log.Printf(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if logLevel <= LogLevelWarning {
		log.Printf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if logLevel <= LogLevelError {
		log.Printf(format, args...)
	}
}

// LogIngest logs the sample ingestion path. Off by default, the volume is
// per-probe-fire.
func LogIngest(format string, args ...interface{}) {
	if logIngest {
		log.Printf(format, args...)
	}
}

// LogProcessing logs the table maintenance and emission path.
func LogProcessing(format string, args ...interface{}) {
	if logProcessing {
		log.Printf(format, args...)
	}
}
