// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package logstore persists battery samples in an append-only CSV file.
//
// The file starts with a fixed header line followed by one row per sample:
//
//	Timestamp,Battery,Percentage,State,Energy,Power_Usage,Health
//	2025-03-01 12:00:00,BAT0,76,discharging,34.20,12.50,90.00
//
// Missing values are written as empty fields. Rows are only ever appended;
// Clear is the single operation that removes data and it keeps the header.
//
// Timestamps are local wall-clock time without a zone offset. When the clock
// falls back at the end of daylight saving time an hour of wall times
// repeats, so file order, not the Timestamp column, is the order of record:
// Tail and the aggregates never sort by time.
//
// Appends, Clear and ExportCopy take an exclusive lock, readers a shared
// one. The lock is an in-process RWMutex plus an advisory flock on
// "<path>.lock" so a CLI process and a running daemon do not interleave.
// Each row is written with one write call on an O_APPEND descriptor, and
// readers skip any row that does not have exactly seven fields, so a reader
// never returns a torn row.
package logstore

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/pkg/metrics"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// Store is a CSV-backed battery log. It is safe for concurrent use.
type Store struct {
	path     string
	lockPath string
	mu       sync.RWMutex
}

// New returns a store for the file at path. Nothing is created until the
// first call to EnsureInitialized or Append.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Path returns the location of the log file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) lock(exclusive bool) (func(), error) {
	if exclusive {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	release := func() {
		if exclusive {
			s.mu.Unlock()
		} else {
			s.mu.RUnlock()
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		release()
		return nil, errors.NewStorageError("lock", s.path, err)
	}
	unlock, err := fileLock(s.lockPath, exclusive)
	if err != nil {
		release()
		return nil, errors.NewStorageError("lock", s.lockPath, err)
	}

	return func() {
		unlock()
		release()
	}, nil
}

// EnsureInitialized creates the log with its header if it does not exist
// or is empty. It is a no-op otherwise.
func (s *Store) EnsureInitialized() error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	return s.ensureInitializedLocked()
}

func (s *Store) ensureInitializedLocked() error {
	info, err := os.Stat(s.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !stderrors.Is(err, os.ErrNotExist):
		return errors.NewStorageError("init", s.path, err)
	}

	header, err := encodeRecords([][]string{Header})
	if err != nil {
		return errors.NewStorageError("init", s.path, err)
	}
	if err := writeFileAtomic(s.path, header); err != nil {
		return errors.NewStorageError("init", s.path, err)
	}

	logger.Info().Str("path", s.path).Msg("Created battery log")
	return nil
}

// Append writes one row for sample. Existing content is never rewritten.
// If a previous append was cut short the partial line is terminated first
// so the new row starts on a line of its own.
func (s *Store) Append(sample *monitoring.BatterySample) error {
	if err := sample.Validate(); err != nil {
		return err
	}
	row, err := encodeRecords([][]string{encodeRow(sample)})
	if err != nil {
		return errors.NewStorageError("append", s.path, err)
	}

	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.ensureInitializedLocked(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, fileMode) // #nosec G304
	if err != nil {
		return errors.NewStorageError("append", s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if torn, err := endsWithoutNewline(s.path); err != nil {
		return errors.NewStorageError("append", s.path, err)
	} else if torn {
		logger.Warn().Str("path", s.path).Msg("Battery log ends with a partial row, terminating it")
		row = append([]byte{'\n'}, row...)
	}

	if _, err := f.Write(row); err != nil {
		return errors.NewStorageError("append", s.path, err)
	}
	return nil
}

// CountRows returns the number of well-formed data rows
func (s *Store) CountRows() (int, error) {
	n := 0
	err := s.scan(func(*monitoring.BatterySample) bool {
		n++
		return true
	})
	return n, err
}

// Tail returns the last n rows, oldest first. The sequence is lazy: the file
// is read each time it is iterated, so it can be ranged over repeatedly and
// reflects the log at that moment. An I/O failure is yielded as the error of
// a final pair.
func (s *Store) Tail(n int) iter.Seq2[*monitoring.BatterySample, error] {
	return func(yield func(*monitoring.BatterySample, error) bool) {
		if n <= 0 {
			return
		}

		ring := make([]*monitoring.BatterySample, 0, min(n, 1024))
		start := 0
		err := s.scan(func(sample *monitoring.BatterySample) bool {
			if len(ring) < n {
				ring = append(ring, sample)
			} else {
				ring[start] = sample
				start = (start + 1) % n
			}
			return true
		})
		if err != nil {
			yield(nil, err)
			return
		}

		for i := range ring {
			if !yield(ring[(start+i)%len(ring)], nil) {
				return
			}
		}
	}
}

// TailSlice collects Tail(n) into a slice
func (s *Store) TailSlice(n int) ([]*monitoring.BatterySample, error) {
	var out []*monitoring.BatterySample
	for sample, err := range s.Tail(n) {
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, nil
}

// Clear removes every data row and keeps the header. The replacement file is
// written next to the log and renamed over it.
func (s *Store) Clear() error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	header, err := encodeRecords([][]string{Header})
	if err != nil {
		return errors.NewStorageError("clear", s.path, err)
	}
	if err := writeFileAtomic(s.path, header); err != nil {
		metrics.StoreErrors.WithLabelValues("clear").Inc()
		return errors.NewStorageError("clear", s.path, err)
	}

	logger.Info().Str("path", s.path).Msg("Battery log cleared")
	return nil
}

// ExportCopy copies the log byte for byte to dest. A log that does not
// exist yet is initialized first, so the copy is at least the header row.
// A partially written destination is removed on failure; existing log
// content is never modified.
func (s *Store) ExportCopy(dest string) error {
	if dest == "" {
		return errors.NewStorageError("export", dest, fmt.Errorf("destination is empty"))
	}

	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.ensureInitializedLocked(); err != nil {
		return err
	}

	src, err := os.Open(s.path)
	if err != nil {
		return errors.NewStorageError("export", s.path, err)
	}
	defer func() {
		_ = src.Close()
	}()

	if srcInfo, err := src.Stat(); err == nil {
		if destInfo, err := os.Stat(dest); err == nil && os.SameFile(srcInfo, destInfo) {
			return errors.NewStorageError("export", dest, fmt.Errorf("destination is the log file itself"))
		}
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode) // #nosec G304
	if err != nil {
		metrics.StoreErrors.WithLabelValues("export").Inc()
		return errors.NewStorageError("export", dest, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		metrics.StoreErrors.WithLabelValues("export").Inc()
		return errors.NewStorageError("export", dest, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return errors.NewStorageError("export", dest, err)
	}

	logger.Info().Str("path", s.path).Str("destination", dest).Msg("Battery log exported")
	return nil
}

// scan calls fn for every well-formed row in file order until fn returns
// false. A missing log reads as empty.
func (s *Store) scan(fn func(*monitoring.BatterySample) bool) error {
	unlock, err := s.lock(false)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.Open(s.path)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.NewStorageError("read", s.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if stderrors.As(err, &parseErr) {
				logger.Debug().Err(err).Str("path", s.path).Msg("Skipping malformed battery log row")
				metrics.RowsSkipped.Inc()
				continue
			}
			return errors.NewStorageError("read", s.path, err)
		}

		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}

		sample, err := decodeRow(rec)
		if err != nil {
			logger.Debug().Err(err).Str("path", s.path).Msg("Skipping malformed battery log row")
			metrics.RowsSkipped.Inc()
			continue
		}
		if !fn(sample) {
			return nil
		}
	}
}

func encodeRecords(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// endsWithoutNewline reports whether a non-empty file lacks a trailing newline
func endsWithoutNewline(path string) (bool, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// writeFileAtomic replaces path with data via a temp file and rename
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
