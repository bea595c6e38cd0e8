// Package logger provides levelled console logging for askgov.
// Debug output is only written in verbose mode; Info, Warn and Error are
// always written.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	now               = time.Now
)

var (
	debugTag = color.New(color.FgHiBlack).SprintFunc()
	infoTag  = color.New(color.FgCyan).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the writer log lines go to. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		write(debugTag("[DEBUG]"), format, args...)
	}
}

func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(infoTag("[INFO]"), format, args...)
}

func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(warnTag("[WARN]"), format, args...)
}

func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(errorTag("[ERROR]"), format, args...)
}

// write must be called with mu held.
func write(tag, format string, args ...any) {
	fmt.Fprintf(output, "%s %s "+format+"\n", append([]any{now().Format("2006/01/02 15:04:05"), tag}, args...)...)
}
