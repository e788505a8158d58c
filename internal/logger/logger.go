// Package logger prints the bootstrap's console output.
//
// Every line carries a severity prefix and color. Output goes to the
// colorable stdout by default and can be redirected with SetOutput.
package logger

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color" // Colorized console output, one color per severity
)

// Each severity gets its own color and a fixed prefix so that every line the
// bootstrap prints can be classified at a glance, even with colors disabled.
var (
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgHiMagenta)
	errorColor = color.New(color.FgRed)
	debugColor = color.New(color.FgCyan)
)

// mu guards out and debugEnabled. debugEnabled is set by Init from the --debug flag.
var (
	mu           sync.Mutex
	out          io.Writer = color.Output
	debugEnabled bool
)

// Init enables or disables debug output.
// It is called once from the root command's PersistentPreRun with the --debug flag.
func Init(enableDebug bool) {
	mu.Lock()
	defer mu.Unlock()
	debugEnabled = enableDebug
}

// SetOutput redirects all log output to w and returns the previous writer.
// Tests use it to capture what a run prints.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

// DebugEnabled reports whether debug output is on.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugEnabled
}

// Info logs informational messages in green.
func Info(format string, a ...any) { write(infoColor, "[INFO] ", format, a...) }

// Warn logs warnings in bright magenta.
func Warn(format string, a ...any) { write(warnColor, "[WARN] ", format, a...) }

// Error logs errors in red.
func Error(format string, a ...any) { write(errorColor, "[ERROR] ", format, a...) }

// Debug logs in cyan when debug output is enabled, otherwise it is a no-op.
func Debug(format string, a ...any) {
	if !DebugEnabled() {
		return
	}
	write(debugColor, "[DEBUG] ", format, a...)
}

// Print writes a line in the given color without a severity prefix.
// It is used for the run summary, where the status column already carries the severity.
func Print(c *color.Color, format string, a ...any) { write(c, "", format, a...) }

// write formats one line, appending the newline callers usually omit.
func write(c *color.Color, prefix, format string, a ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	mu.Lock()
	defer mu.Unlock()
	_, _ = c.Fprintf(out, prefix+format, a...)
}
