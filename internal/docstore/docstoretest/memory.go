// Package docstoretest provides an in-memory docstore.Endpoint with fault injection.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

const duplicateKeyCode = 11000

var (
	ErrUnreachable = errors.New("connection refused")
	ErrAuth        = errors.New("authentication failed")
)

// Memory keeps collections as ordered slices of documents.
type Memory struct {
	role string

	mu          sync.Mutex
	databases   map[string]map[string][]docstore.Document
	indexes     map[docstore.Namespace][]docstore.IndexSpec
	unreachable bool
	authFailure bool
	failAfter   map[docstore.Namespace]int
	writes      int
	openCursors int
}

func NewMemory(role string) *Memory {
	return &Memory{
		role:      role,
		databases: make(map[string]map[string][]docstore.Document),
		indexes:   make(map[docstore.Namespace][]docstore.IndexSpec),
		failAfter: make(map[docstore.Namespace]int),
	}
}

// Seed appends docs to ns, creating the collection even when docs is empty.
func (m *Memory) Seed(ns docstore.Namespace, docs ...docstore.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()

	collections := m.ensureDatabase(ns.Database)
	collections[ns.Collection] = append(collections[ns.Collection], cloneDocs(docs)...)
}

func (m *Memory) SeedIndexes(ns docstore.Namespace, specs ...docstore.IndexSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[ns] = append(m.indexes[ns], specs...)
}

// Documents returns a copy of the documents stored in ns.
func (m *Memory) Documents(ns docstore.Namespace) []docstore.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDocs(m.databases[ns.Database][ns.Collection])
}

func (m *Memory) Indexes(ns docstore.Namespace) []docstore.IndexSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]docstore.IndexSpec(nil), m.indexes[ns]...)
}

// SetUnreachable makes every subsequent call fail with a ConnectivityError.
func (m *Memory) SetUnreachable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = v
}

// SetAuthFailure makes every subsequent call fail with an AuthenticationError.
func (m *Memory) SetAuthFailure(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailure = v
}

// FailFindAfter makes cursors over ns break after delivering n documents.
func (m *Memory) FailFindAfter(ns docstore.Namespace, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter[ns] = n
}

// Writes counts every mutating call that reached the store.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// OpenCursors counts cursors that were opened and not yet closed.
func (m *Memory) OpenCursors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCursors
}

func (m *Memory) Role() string {
	return m.role
}

func (m *Memory) Address() string {
	return "memory://" + m.role
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked(ctx)
}

func (m *Memory) ListDatabases(ctx context.Context) ([]docstore.DatabaseInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]docstore.DatabaseInfo, 0, len(names))
	for _, name := range names {
		var size int64
		for _, docs := range m.databases[name] {
			size += int64(len(docs))
		}
		infos = append(infos, docstore.DatabaseInfo{Name: name, SizeBytes: size})
	}
	return infos, nil
}

func (m *Memory) ListCollections(ctx context.Context, database string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.databases[database]))
	for name := range m.databases[database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Find(ctx context.Context, ns docstore.Namespace) (docstore.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}

	failAfter, ok := m.failAfter[ns]
	if !ok {
		failAfter = -1
	}

	m.openCursors++
	return &memoryCursor{
		store:     m,
		docs:      cloneDocs(m.databases[ns.Database][ns.Collection]),
		failAfter: failAfter,
	}, nil
}

func (m *Memory) InsertMany(ctx context.Context, ns docstore.Namespace, docs []docstore.Document) (docstore.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return docstore.InsertResult{}, err
	}
	m.writes++

	collections := m.ensureDatabase(ns.Database)
	existing := make(map[string]struct{}, len(collections[ns.Collection]))
	for _, doc := range collections[ns.Collection] {
		if key, ok := idKey(doc); ok {
			existing[key] = struct{}{}
		}
	}

	var result docstore.InsertResult
	for i, doc := range docs {
		if key, ok := idKey(doc); ok {
			if _, dup := existing[key]; dup {
				result.Failures = append(result.Failures, docstore.WriteFailure{
					Index:   i,
					Code:    duplicateKeyCode,
					Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: _id_ dup key: %s", ns, key),
				})
				continue
			}
			existing[key] = struct{}{}
		}
		collections[ns.Collection] = append(collections[ns.Collection], cloneDoc(doc))
		result.Inserted++
	}
	return result, nil
}

func (m *Memory) ListIndexes(ctx context.Context, ns docstore.Namespace) ([]docstore.IndexSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	return append([]docstore.IndexSpec(nil), m.indexes[ns]...), nil
}

func (m *Memory) CreateIndexes(ctx context.Context, ns docstore.Namespace, specs []docstore.IndexSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(ctx); err != nil {
		return err
	}
	m.writes++
	m.indexes[ns] = append(m.indexes[ns], specs...)
	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

func (m *Memory) ensureDatabase(name string) map[string][]docstore.Document {
	collections, ok := m.databases[name]
	if !ok {
		collections = make(map[string][]docstore.Document)
		m.databases[name] = collections
	}
	return collections
}

func (m *Memory) checkLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.authFailure {
		return &docstore.AuthenticationError{Role: m.role, Err: ErrAuth}
	}
	if m.unreachable {
		return &docstore.ConnectivityError{Role: m.role, Err: ErrUnreachable}
	}
	return nil
}

type memoryCursor struct {
	store     *Memory
	docs      []docstore.Document
	pos       int
	failAfter int
	closed    bool
}

func (c *memoryCursor) Next(ctx context.Context) (docstore.Document, error) {
	if c.failAfter >= 0 && c.pos >= c.failAfter {
		return nil, &docstore.ConnectivityError{Role: c.store.role, Err: ErrUnreachable}
	}
	if err := c.store.Ping(ctx); err != nil {
		return nil, err
	}
	if c.pos >= len(c.docs) {
		return nil, io.EOF
	}

	doc := c.docs[c.pos]
	c.pos++
	return doc, nil
}

func (c *memoryCursor) Close(context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.store.mu.Lock()
	c.store.openCursors--
	c.store.mu.Unlock()
	return nil
}

func idKey(doc docstore.Document) (string, bool) {
	for _, elem := range doc {
		if elem.Key == "_id" {
			return fmt.Sprintf("%#v", elem.Value), true
		}
	}
	return "", false
}

func cloneDoc(doc docstore.Document) docstore.Document {
	return append(docstore.Document(nil), doc...)
}

func cloneDocs(docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		out[i] = cloneDoc(doc)
	}
	return out
}
