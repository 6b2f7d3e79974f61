package logger

import (
	"fmt"
	"log"
	"os"
)

// Level represents the logging level.
type Level int

const (
	// DebugLevel logs are typically verbose
	DebugLevel Level = iota
	// InfoLevel is the default logging priority
	InfoLevel
	// WarnLevel logs are warnings
	WarnLevel
	// ErrorLevel logs are high-priority
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

var (
	std          = log.New(os.Stdout, "", log.LstdFlags)
	currentLevel = InfoLevel
)

// Initialize sets the global level from a string such as "debug" or "warn".
// Unknown values fall back to info.
func Initialize(level string) {
	switch level {
	case "debug", "DEBUG":
		currentLevel = DebugLevel
		std.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	case "warn", "WARN", "warning", "WARNING":
		currentLevel = WarnLevel
		std.SetFlags(log.Ldate | log.Ltime)
	case "error", "ERROR":
		currentLevel = ErrorLevel
		std.SetFlags(log.Ldate | log.Ltime)
	default:
		currentLevel = InfoLevel
		std.SetFlags(log.Ldate | log.Ltime)
	}
}

func output(level Level, format string, v ...interface{}) {
	if level < currentLevel {
		return
	}
	std.SetPrefix(fmt.Sprintf("[%s] ", levelNames[level]))
	_ = std.Output(3, fmt.Sprintf(format, v...))
}

// Package-level helpers
func Debug(format string, v ...interface{}) { output(DebugLevel, format, v...) }
func Info(format string, v ...interface{})  { output(InfoLevel, format, v...) }
func Warn(format string, v ...interface{})  { output(WarnLevel, format, v...) }
func Error(format string, v ...interface{}) { output(ErrorLevel, format, v...) }
