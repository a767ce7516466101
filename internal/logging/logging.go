package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where the standard logger writes.
type Options struct {
	// File enables a size-rotated log file. Empty keeps stderr only.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet drops the stderr copy when a file is configured.
	Quiet bool
}

// Setup points the standard logger at stderr and, when configured, a
// rotating file. The returned closer flushes and closes the file.
func Setup(opts Options) io.Closer {
	log.SetFlags(log.LstdFlags | log.LUTC)

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	if opts.Quiet {
		log.SetOutput(rotator)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
