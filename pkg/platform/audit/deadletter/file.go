package deadletter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"workspace-audit/pkg/platform/audit"
)

// FileSpool is a JSON-lines spool on local disk. Appends are fsync'd; drains
// rewrite the remainder through a temp file and rename so a crash never leaves
// a half-written spool.
type FileSpool struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileSpool opens (or prepares to create) a spool at path.
func NewFileSpool(path string, logger *slog.Logger) (*FileSpool, error) {
	if path == "" {
		return nil, errors.New("dead-letter spool path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSpool{path: path, logger: logger}, nil
}

// Append implements Spool. A record whose payloads cannot be encoded is
// spooled with those payloads stripped, so it never blocks the rest.
func (s *FileSpool) Append(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	var buf bytes.Buffer
	var stripped []string
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			var ok bool
			r.Event, ok = audit.StripUnencodable(r.Event)
			if !ok {
				return fmt.Errorf("encode spool record %s: %w", r.Event.ID, err)
			}
			if line, err = json.Marshal(r); err != nil {
				return fmt.Errorf("encode spool record %s: %w", r.Event.ID, err)
			}
			stripped = append(stripped, r.Event.ID)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if len(stripped) > 0 {
		s.logger.Warn("spooled audit events with unencodable payloads stripped", "event_ids", stripped)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write spool: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync spool: %w", err)
	}
	return nil
}

// Drain implements Spool.
func (s *FileSpool) Drain(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil || len(lines) == 0 {
		return 0, err
	}

	n := min(limit, len(lines))
	batch := make([]Record, 0, n)
	var corrupt [][]byte
	for _, line := range lines[:n] {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			corrupt = append(corrupt, line)
			continue
		}
		batch = append(batch, r)
	}

	if len(batch) > 0 {
		if err := fn(ctx, batch); err != nil {
			return 0, err
		}
	}
	if len(corrupt) > 0 {
		s.quarantine(corrupt)
	}
	if err := s.rewrite(lines[n:]); err != nil {
		return 0, err
	}
	return n, nil
}

// Len implements Spool.
func (s *FileSpool) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.readLines()
	return len(lines), err
}

func (s *FileSpool) readLines() ([][]byte, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	return lines, nil
}

func (s *FileSpool) rewrite(remaining [][]byte) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open spool temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range remaining {
		_, _ = w.Write(line)  //nolint:errcheck // surfaced by Flush
		_ = w.WriteByte('\n') //nolint:errcheck // surfaced by Flush
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write spool temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync spool temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close spool temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace spool: %w", err)
	}
	return nil
}

func (s *FileSpool) quarantine(lines [][]byte) {
	f, err := os.OpenFile(s.path+".corrupt", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.logger.Error("failed to quarantine corrupt spool lines", "count", len(lines), "error", err)
		return
	}
	defer f.Close()
	for _, line := range lines {
		_, _ = f.Write(append(line, '\n')) //nolint:errcheck // best effort quarantine
	}
	s.logger.Warn("quarantined corrupt dead-letter records", "count", len(lines), "path", s.path+".corrupt")
}
