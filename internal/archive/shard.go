package archive

import (
	"fmt"
	"os"

	"github.com/kadirbelkuyu/docsnap/internal/codec"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// ShardBuffer is a temporary file that collects one collection's records
// before they are absorbed into an Archive. Release always removes the file.
type ShardBuffer struct {
	ns       docstore.Namespace
	file     *os.File
	writer   *codec.Writer
	sealed   bool
	released bool
}

// NewShardBuffer creates the temporary file in dir, or in the system temp
// directory when dir is empty.
func NewShardBuffer(dir string, ns docstore.Namespace) (*ShardBuffer, error) {
	file, err := os.CreateTemp(dir, "docsnap-shard-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create shard buffer for %s: %w", ns, err)
	}

	return &ShardBuffer{
		ns:     ns,
		file:   file,
		writer: codec.NewWriter(file),
	}, nil
}

func (b *ShardBuffer) Write(doc docstore.Document) error {
	if b.sealed || b.released {
		return fmt.Errorf("shard buffer for %s is closed", b.ns)
	}
	return b.writer.Write(doc)
}

// Count returns how many documents have been written.
func (b *ShardBuffer) Count() int64 {
	return b.writer.Count()
}

// Path returns the location of the temporary file.
func (b *ShardBuffer) Path() string {
	return b.file.Name()
}

// Seal flushes and closes the file and describes it as a Shard.
func (b *ShardBuffer) Seal() (Shard, error) {
	if b.released {
		return Shard{}, fmt.Errorf("shard buffer for %s already released", b.ns)
	}
	if !b.sealed {
		if err := b.writer.Flush(); err != nil {
			return Shard{}, fmt.Errorf("failed to flush shard %s: %w", b.ns, err)
		}
		if err := b.file.Close(); err != nil {
			return Shard{}, fmt.Errorf("failed to close shard %s: %w", b.ns, err)
		}
		b.sealed = true
	}

	return Shard{
		Namespace: b.ns,
		Path:      b.file.Name(),
		Count:     b.writer.Count(),
	}, nil
}

// Release closes and removes the temporary file. It is safe to call more than once.
func (b *ShardBuffer) Release() error {
	if b.released {
		return nil
	}
	b.released = true

	if !b.sealed {
		_ = b.file.Close()
	}
	if err := os.Remove(b.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove shard buffer %s: %w", b.file.Name(), err)
	}
	return nil
}
