// Package logging builds the component loggers used across treemirror.
//
// Every component logs through a stdlib *log.Logger with a bracketed
// prefix ("[reconcile] ", "[walk] ", ...). When a log file is
// configured, output is duplicated to a lumberjack-rotated file so a
// long-running daemon does not fill the disk.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// File enables rotated file logging when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger with the given component prefix, writing to
// stderr and, when configured, to a rotated log file.
func New(component string, opts Options) *log.Logger {
	var w io.Writer = os.Stderr

	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		w = io.MultiWriter(os.Stderr, rotated)
	}

	return log.New(w, "["+component+"] ", log.LstdFlags)
}
