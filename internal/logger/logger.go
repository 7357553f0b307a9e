package logger

import (
	"log"
	"os"
)

// Shared leveled logger for all binaries. Debug lines are suppressed
// unless SetDebug(true) was called during startup.

var debug bool

var std = log.New(os.Stdout, "", log.LstdFlags)

// SetDebug toggles emission of Debug lines. Call once before serving.
func SetDebug(enabled bool) {
	debug = enabled
}

func Debug(format string, args ...interface{}) {
	if !debug {
		return
	}
	std.Printf("[DEBUG] "+format, args...)
}

func Info(format string, args ...interface{}) {
	std.Printf("[INFO] "+format, args...)
}

func Warn(format string, args ...interface{}) {
	std.Printf("[WARN] "+format, args...)
}

func Error(format string, args ...interface{}) {
	std.Printf("[ERROR] "+format, args...)
}

// Fatal logs the message and terminates the process with a non-zero code.
func Fatal(format string, args ...interface{}) {
	std.Printf("[FATAL] "+format, args...)
	os.Exit(1)
}
