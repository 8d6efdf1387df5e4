// Package stream reads and writes the newline-delimited record stream that
// a crawl run persists and the loader later consumes.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/banalytics/harvester/internal/domain"
)

// maxRecordBytes bounds a single serialized record line. Category trees are
// the largest payloads and stay well under this.
const maxRecordBytes = 16 * 1024 * 1024

// Writer serializes records one per line. It is safe for concurrent use by
// many crawl branches.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	enc     *json.Encoder
	written int
}

// NewWriter creates a record stream writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: json.NewEncoder(w)}
}

// Write appends one record to the stream.
func (w *Writer) Write(rec *domain.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.written++
	return nil
}

// Written returns the number of records written so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Reader decodes records line by line from a persisted stream.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a record stream reader on r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	return &Reader{scanner: scanner}
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (*domain.Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec domain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode record at line %d: %w", r.line, err)
		}
		if !rec.Kind.Valid() {
			return nil, fmt.Errorf("record at line %d: %w: %q", r.line, domain.ErrUnknownKind, rec.Kind)
		}
		return &rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read record stream: %w", err)
	}
	return nil, io.EOF
}
