package output

import (
	"fmt"
	"os"
)

// Status messages for long-running commands. Informational and success
// lines go to stdout, warnings to stderr, each with a marker prefix.

func emit(w *os.File, prefix, msg string) {
	_, _ = fmt.Fprintln(w, prefix+msg)
}

// Info prints an informational line to stdout.
func Info(msg string) { emit(os.Stdout, "ℹ️  ", msg) }

// Infof prints a formatted informational line to stdout.
func Infof(format string, args ...any) { Info(fmt.Sprintf(format, args...)) }

// Warn prints a warning line to stderr.
func Warn(msg string) { emit(os.Stderr, "⚠️  ", msg) }

// Warnf prints a formatted warning line to stderr.
func Warnf(format string, args ...any) { Warn(fmt.Sprintf(format, args...)) }

// Success prints a success line to stdout.
func Success(msg string) { emit(os.Stdout, "✅ ", msg) }

// Successf prints a formatted success line to stdout.
func Successf(format string, args ...any) { Success(fmt.Sprintf(format, args...)) }
