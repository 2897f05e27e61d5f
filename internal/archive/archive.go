// Package archive packages per-collection shards and a manifest into a single
// gzip-compressed tar file.
//
// Layout:
//
//	shards/0001-shop.orders.jsonl   one Extended JSON record per line
//	shards/0002-shop.users.jsonl
//	manifest.json                  always the last entry
//
// The file is written under a ".partial" name and only renamed into place by
// Finalize, so a reader never sees an archive whose manifest is missing.
package archive

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

const partialSuffix = ".partial"

var errFinalized = errors.New("archive already finalized")

// Shard is a sealed temporary file of serialized documents for one collection.
type Shard struct {
	Namespace docstore.Namespace
	Path      string
	Count     int64
}

// Archive is a single-writer container. AddShard and Finalize may be called
// from several goroutines; calls are serialized.
type Archive struct {
	mu      sync.Mutex
	path    string
	partial string
	file    *os.File
	gz      *gzip.Writer
	tw      *tar.Writer
	entries []ManifestEntry
	started time.Time
	broken  error
	done    bool
}

// Create opens a new archive that will be published at path by Finalize.
// Callers must defer Close, which discards the file unless Finalize succeeded.
func Create(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &PackagingError{Op: "create", Err: fmt.Errorf("failed to prepare backup directory: %w", err)}
	}

	partial := path + partialSuffix
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &PackagingError{Op: "create", Err: err}
	}

	gz, err := gzip.NewWriterLevel(file, gzip.DefaultCompression)
	if err != nil {
		file.Close()
		os.Remove(partial)
		return nil, &PackagingError{Op: "create", Err: err}
	}

	return &Archive{
		path:    path,
		partial: partial,
		file:    file,
		gz:      gz,
		tw:      tar.NewWriter(gz),
		started: time.Now(),
	}, nil
}

// Path returns where the archive will exist once finalized.
func (a *Archive) Path() string {
	return a.path
}

// AddShard copies a sealed shard into the container and records it for the manifest.
func (a *Archive) AddShard(shard Shard) (ManifestEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: errFinalized}
	}
	if a.broken != nil {
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: a.broken}
	}

	source, err := os.Open(shard.Path)
	if err != nil {
		// Nothing was written yet, so the container is still intact.
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: err}
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: err}
	}

	ref := shardRef(len(a.entries)+1, shard.Namespace)
	header := &tar.Header{
		Name:    ref,
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: time.Now(),
	}

	if err := a.tw.WriteHeader(header); err != nil {
		a.broken = err
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: err}
	}
	if _, err := io.Copy(a.tw, source); err != nil {
		a.broken = err
		return ManifestEntry{}, &PackagingError{Op: "add shard", Err: err}
	}

	entry := ManifestEntry{
		Database:      shard.Namespace.Database,
		Collection:    shard.Namespace.Collection,
		DocumentCount: shard.Count,
		Shard:         ref,
	}
	a.entries = append(a.entries, entry)
	return entry, nil
}

// Len returns how many shards have been added.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Finalize writes the manifest, closes the container and publishes it at Path.
// On failure the partial file is removed and a *PackagingError is returned.
func (a *Archive) Finalize() (*BackupArchive, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return nil, &PackagingError{Op: "finalize", Err: errFinalized}
	}
	if a.broken != nil {
		a.discardLocked()
		return nil, &PackagingError{Op: "finalize", Err: a.broken}
	}

	manifest := Manifest{
		Version:   manifestVersion,
		CreatedAt: time.Now().UTC(),
		Entries:   append([]ManifestEntry{}, a.entries...),
	}

	if err := a.writeManifestLocked(manifest); err != nil {
		a.discardLocked()
		return nil, &PackagingError{Op: "finalize", Err: err}
	}

	if err := os.Rename(a.partial, a.path); err != nil {
		os.Remove(a.partial)
		return nil, &PackagingError{Op: "finalize", Err: err}
	}

	result, err := buildBackupArchive(a.path, manifest, a.started)
	if err != nil {
		os.Remove(a.path)
		return nil, &PackagingError{Op: "finalize", Err: err}
	}
	return result, nil
}

// Close discards the archive unless it was finalized. It is safe to call more than once.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return nil
	}
	a.discardLocked()
	return nil
}

func (a *Archive) writeManifestLocked(manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	header := &tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: manifest.CreatedAt,
	}
	if err := a.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := a.tw.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	a.done = true
	if err := a.tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar stream: %w", err)
	}
	if err := a.gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip stream: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

func (a *Archive) discardLocked() {
	a.done = true
	_ = a.tw.Close()
	_ = a.gz.Close()
	_ = a.file.Close()
	_ = os.Remove(a.partial)
}

func shardRef(seq int, ns docstore.Namespace) string {
	return fmt.Sprintf("shards/%04d-%s.jsonl", seq, url.PathEscape(ns.String()))
}
