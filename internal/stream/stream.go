// Package stream reads one collection as a lazy, forward-only sequence of documents.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// InterruptedError reports a read failure after Delivered documents were
// already handed to the caller.
type InterruptedError struct {
	Namespace docstore.Namespace
	Delivered int64
	Err       error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("stream of %s interrupted after %d documents: %v", e.Namespace, e.Delivered, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

type Stream struct {
	ns        docstore.Namespace
	cursor    docstore.Cursor
	delivered int64
	done      bool
	closed    bool
}

// Open starts reading ns from ep. The caller must Close the stream.
func Open(ctx context.Context, ep docstore.Endpoint, ns docstore.Namespace) (*Stream, error) {
	cursor, err := ep.Find(ctx, ns)
	if err != nil {
		return nil, err
	}
	return &Stream{ns: ns, cursor: cursor}, nil
}

// Next returns the next document, io.EOF at the end of the collection, or an
// *InterruptedError when the cursor fails mid-way.
func (s *Stream) Next(ctx context.Context) (docstore.Document, error) {
	if s.done || s.closed {
		return nil, io.EOF
	}

	doc, err := s.cursor.Next(ctx)
	if err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &InterruptedError{Namespace: s.ns, Delivered: s.delivered, Err: err}
	}

	s.delivered++
	return doc, nil
}

// Delivered returns how many documents Next has returned so far.
func (s *Stream) Delivered() int64 {
	return s.delivered
}

func (s *Stream) Namespace() docstore.Namespace {
	return s.ns
}

// Close releases the server-side cursor. It may be called at any point and more than once.
func (s *Stream) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cursor.Close(ctx)
}

// ForEach opens ns, calls fn for every document in order and always closes the stream.
func ForEach(ctx context.Context, ep docstore.Endpoint, ns docstore.Namespace, fn func(docstore.Document) error) (int64, error) {
	s, err := Open(ctx, ep, ns)
	if err != nil {
		return 0, err
	}
	defer s.Close(context.WithoutCancel(ctx))

	for {
		doc, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return s.Delivered(), nil
		}
		if err != nil {
			return s.Delivered(), err
		}
		if err := fn(doc); err != nil {
			return s.Delivered(), err
		}
	}
}
