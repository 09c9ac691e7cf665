// Package file provides file-based audit persistence: JSON Lines with
// daily rotation, size caps, and retention cleanup.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/cerberus-gate/cerberus/internal/domain/audit"
)

// auditFilePattern matches audit-YYYY-MM-DD.log or audit-YYYY-MM-DD-N.log.
var auditFilePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// AuditConfig holds configuration for the file-based audit store.
type AuditConfig struct {
	// Dir is the directory where audit files are written.
	Dir string
	// RetentionDays is how long rotated files are kept (default 7).
	RetentionDays int
	// MaxFileSizeMB is the size cap before rotation (default 100).
	MaxFileSizeMB int
}

// AuditStore writes decision records as JSON Lines, one file per day,
// rotating on size and deleting files past retention.
type AuditStore struct {
	dir           string
	maxFileSize   int64
	retentionDays int

	mu            sync.Mutex
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	closed        bool

	cancel context.CancelFunc
	logger *slog.Logger
}

var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore creates the directory if needed, opens today's file,
// runs retention cleanup, and starts the hourly cleanup loop.
func NewAuditStore(cfg AuditConfig, logger *slog.Logger) (*AuditStore, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AuditStore{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cancel:        cancel,
		logger:        logger,
	}

	if err := s.openCurrent(time.Now().UTC().Format(time.DateOnly)); err != nil {
		cancel()
		return nil, fmt.Errorf("open audit file: %w", err)
	}

	s.cleanup()
	go s.cleanupLoop(ctx)
	return s, nil
}

// Append writes records as JSON lines, rotating on date and size.
func (s *AuditStore) Append(_ context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit store closed")
	}

	for _, rec := range records {
		date := rec.CreatedAt.UTC().Format(time.DateOnly)
		if date != s.currentDate {
			if err := s.rotateLocked(date, 0); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if s.currentSize >= s.maxFileSize {
			if err := s.rotateLocked(s.currentDate, s.currentSuffix+1); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		n, err := s.currentFile.Write(append(data, '\n'))
		if err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
		s.currentSize += int64(n)
	}
	return nil
}

// Close stops the cleanup loop and closes the current file.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	if s.currentFile != nil {
		s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}
	return nil
}

// openCurrent opens the file for date, resuming the highest existing
// suffix so restarts append rather than overwrite.
func (s *AuditStore) openCurrent(date string) error {
	return s.rotateLocked(date, s.highestSuffix(date))
}

// rotateLocked closes the current file and opens date/suffix.
func (s *AuditStore) rotateLocked(date string, suffix int) error {
	if s.currentFile != nil {
		s.currentFile.Sync()
		s.currentFile.Close()
		s.currentFile = nil
	}

	path := filepath.Join(s.dir, filename(date, suffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	s.currentFile = f
	s.currentDate = date
	s.currentSize = info.Size()
	s.currentSuffix = suffix
	return nil
}

func filename(date string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("audit-%s.log", date)
	}
	return fmt.Sprintf("audit-%s-%d.log", date, suffix)
}

func (s *AuditStore) highestSuffix(date string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		d, suffix, ok := parseFilename(e.Name())
		if ok && d == date && suffix > highest {
			highest = suffix
		}
	}
	return highest
}

func parseFilename(name string) (date string, suffix int, ok bool) {
	matches := auditFilePattern.FindStringSubmatch(name)
	if matches == nil {
		return "", 0, false
	}
	if matches[2] != "" {
		n, err := strconv.Atoi(matches[2])
		if err != nil {
			return "", 0, false
		}
		suffix = n
	}
	return matches[1], suffix, true
}

// cleanup deletes audit files older than the retention period.
func (s *AuditStore) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("audit cleanup failed to read directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, e := range entries {
		date, _, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		fileDate, err := time.Parse(time.DateOnly, date)
		if err != nil || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Error("audit cleanup failed to delete file", "file", e.Name(), "error", err)
		} else {
			deleted++
		}
	}
	if deleted > 0 {
		s.logger.Info("audit retention cleanup", "deleted", deleted)
	}
}

func (s *AuditStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}
