// Package sink holds output destinations for emitted records.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/baxromumarov/catalog-scraper/internal/product"
)

// JSONLines writes one JSON object per emitted record.
type JSONLines struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	count  int
}

func NewJSONLines(w io.Writer) *JSONLines {
	s := &JSONLines{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenJSONLines creates (or truncates) path and writes records to it.
func OpenJSONLines(path string) (*JSONLines, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return NewJSONLines(f), nil
}

func (s *JSONLines) Save(_ context.Context, rec *product.Record) error {
	line, err := json.Marshal(rec.Fields())
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Label(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write record %s: %w", rec.Label(), err)
	}
	s.count++
	return nil
}

// Count returns the number of records written so far.
func (s *JSONLines) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *JSONLines) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// Close flushes buffered lines and closes the underlying file, if any.
func (s *JSONLines) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
