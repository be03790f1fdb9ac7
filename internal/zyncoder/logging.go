package zyncoder

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// DailyFileWriter rotates its output file once per day according to a
// strftime pattern (e.g. "zyncoder-%Y%m%d.log"), mirroring the teacher's
// log_init daily-names mode (src/log.go) but built on a real strftime
// implementation instead of hand-rolled date formatting.
type DailyFileWriter struct {
	mu       sync.Mutex
	pattern  *strftime.Strftime
	dir      string
	openName string
	file     *os.File
}

// NewDailyFileWriter builds a writer that rotates files under dir named
// by expanding pattern once per day.
func NewDailyFileWriter(dir, pattern string) (*DailyFileWriter, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("zyncoder: invalid daily log pattern %q: %w", pattern, err)
	}
	return &DailyFileWriter{pattern: f, dir: dir}, nil
}

// Write implements io.Writer, opening (or rotating to) today's file as
// needed before writing.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := w.pattern.FormatString(time.Now())
	if name != w.openName {
		if w.file != nil {
			w.file.Close()
		}
		path := name
		if w.dir != "" {
			path = w.dir + string(os.PathSeparator) + name
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("zyncoder: opening daily log %q: %w", path, err)
		}
		w.file = f
		w.openName = name
	}
	return w.file.Write(p)
}

// Close releases the currently open file, if any.
func (w *DailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// NewLogger builds the root charmbracelet/log logger used throughout the
// core. It writes only to daily when one is given, otherwise to stderr.
func NewLogger(level log.Level, daily *DailyFileWriter) *log.Logger {
	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    false,
	}
	if daily != nil {
		return log.NewWithOptions(daily, opts)
	}
	return log.NewWithOptions(os.Stderr, opts)
}
