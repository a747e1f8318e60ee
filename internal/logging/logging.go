// Package logging provides centralized logging functionality using logrus.
// It configures structured logging with JSON formatting and provides
// convenience functions for different log levels.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// programName is used as a field in all log entries for identification
var programName = os.Args[0]

// LogInfo logs an informational message with the programName field.
// This function should be used to log informational messages during program execution.
func LogInfo(msg string) {
	log.WithFields(log.Fields{"job": programName}).Info(msg)
}

// LogError logs the provided error message with the programName field.
// This function should be used to log recoverable errors that do not terminate the program.
func LogError(msg string) {
	log.WithFields(log.Fields{"job": programName}).Error(msg)
}

// LogPanic logs the provided error and exits the program with a non-zero exit code.
// This function should be used to handle critical errors that prevent the program from continuing.
func LogPanic(err error) {
	log.WithFields(log.Fields{"job": programName}).Panic(err)
}

// PrepareLogs initializes the logging system with the specified log file.
// It configures logging to write to both stdout and the log file with JSON
// formatting. An empty logName configures stdout-only logging.
//
// Returns an error if the log file cannot be opened or created.
func PrepareLogs(logName string) error {
	log.SetFormatter(&log.JSONFormatter{})

	if logName == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	logFile, err := os.OpenFile(logName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	return nil
}
