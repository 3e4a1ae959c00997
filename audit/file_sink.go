package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultFileMaxSizeMB  = 100
	defaultFileMaxBackups = 10
)

// ErrFileSinkClosed is returned by Write after Close.
var ErrFileSinkClosed = errors.New("audit file sink closed")

// FileSinkConfig configures a [FileSink].
type FileSinkConfig struct {
	// Path is the active log file, e.g. /var/log/goguard/audit.jsonl.
	Path string
	// MaxSizeMB is the size in megabytes that triggers rotation. Zero uses
	// 100.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Zero keeps 10.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this many days. Zero
	// keeps them regardless of age.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// FileSink appends flat JSON records to a size-rotated file. Rotated files
// are named <base>-<timestamp><ext> next to the active file, and pruning
// only considers names carrying this sink's own timestamp layout.
type FileSink struct {
	mu     sync.Mutex
	log    *lumberjack.Logger
	closed bool
}

// NewFileSink opens (or creates) the active file in append mode.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultFileMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultFileMaxBackups
	}

	// fail at construction rather than on the first event
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &FileSink{log: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

// Write appends event as one JSON line.
func (s *FileSink) Write(_ context.Context, event Event) error {
	data, err := event.MarshalRecord()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrFileSinkClosed
	}
	if _, err := s.log.Write(data); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Rotate closes the active file, renames it with a timestamp and opens a
// fresh one.
func (s *FileSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrFileSinkClosed
	}
	return s.log.Rotate()
}

// Close closes the active file. Later writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.log.Close()
}
