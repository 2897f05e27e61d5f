package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// Writer appends newline-delimited records to an underlying stream.
type Writer struct {
	w     *bufio.Writer
	count int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*1024)}
}

func (w *Writer) Write(doc docstore.Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns how many records have been written.
func (w *Writer) Count() int64 {
	return w.count
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Reader decodes records produced by Writer.
type Reader struct {
	r      *bufio.Reader
	record int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next document or io.EOF after the last record.
func (r *Reader) Next() (docstore.Document, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}

		r.record++
		doc, decodeErr := Unmarshal(line)
		if decodeErr != nil {
			return nil, fmt.Errorf("record %d: %w", r.record, decodeErr)
		}
		return doc, nil
	}
}
