package archive

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/kadirbelkuyu/docsnap/internal/codec"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// ErrCorrupt is returned when an archive's shards disagree with its manifest.
var ErrCorrupt = errors.New("archive is corrupt")

// Reader gives read access to a finalized archive.
type Reader struct {
	path     string
	manifest Manifest
}

// Open reads the manifest of the archive at path and checks that every
// referenced shard exists and holds exactly the documented number of records.
func Open(path string) (*Reader, error) {
	counts := make(map[string]int64)
	var manifest *Manifest

	err := walk(path, func(header *tar.Header, body io.Reader) error {
		switch {
		case header.Name == ManifestName:
			var m Manifest
			if err := json.NewDecoder(body).Decode(&m); err != nil {
				return fmt.Errorf("failed to decode manifest: %w", err)
			}
			manifest = &m
		case strings.HasPrefix(header.Name, "shards/"):
			n, err := countRecords(body)
			if err != nil {
				return fmt.Errorf("shard %s: %w", header.Name, err)
			}
			counts[header.Name] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest missing", ErrCorrupt)
	}
	if len(counts) != len(manifest.Entries) {
		return nil, fmt.Errorf("%w: %d shards but %d manifest entries", ErrCorrupt, len(counts), len(manifest.Entries))
	}
	for _, entry := range manifest.Entries {
		n, ok := counts[entry.Shard]
		if !ok {
			return nil, fmt.Errorf("%w: shard %s missing", ErrCorrupt, entry.Shard)
		}
		if n != entry.DocumentCount {
			return nil, fmt.Errorf("%w: shard %s holds %d documents, manifest says %d", ErrCorrupt, entry.Shard, n, entry.DocumentCount)
		}
	}

	return &Reader{path: path, manifest: *manifest}, nil
}

func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// ForEach decodes the documents of one shard in stored order.
func (r *Reader) ForEach(ref string, fn func(docstore.Document) error) error {
	found := false
	err := walk(r.path, func(header *tar.Header, body io.Reader) error {
		if header.Name != ref {
			return nil
		}
		found = true

		records := codec.NewReader(body)
		for {
			doc, err := records.Next()
			if errors.Is(err, io.EOF) {
				return errStop
			}
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("shard %s not found in %s", ref, r.path)
	}
	return nil
}

// Documents loads a whole shard. Intended for small shards and verification.
func (r *Reader) Documents(ref string) ([]docstore.Document, error) {
	var docs []docstore.Document
	err := r.ForEach(ref, func(doc docstore.Document) error {
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

var errStop = errors.New("stop walking")

func walk(path string, fn func(*tar.Header, io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive entry: %w", err)
		}

		if err := fn(header, tr); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

func countRecords(r io.Reader) (int64, error) {
	records := codec.NewReader(r)
	var n int64
	for {
		_, err := records.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
