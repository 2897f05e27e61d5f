package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

// Local copies archives into a directory and prints reports to a writer.
type Local struct {
	dir       string
	out       io.Writer
	maxLength int
	log       *logger.Logger
}

// NewLocal creates dir if needed. An empty dir leaves archives where they are.
func NewLocal(dir string, out io.Writer, maxLength int, log *logger.Logger) (*Local, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create delivery directory: %w", err)
		}
	}
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Local{dir: dir, out: out, maxLength: maxLength, log: log}, nil
}

func (l *Local) DeliverFile(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath, err := l.destination(path)
	if err != nil {
		return err
	}
	if destPath == "" {
		l.log.Infof("%s: %s", caption, path)
		return nil
	}

	source, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := dest.ReadFrom(source); err != nil {
		dest.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to close dest: %w", err)
	}

	l.log.Infof("%s: %s", caption, destPath)
	return nil
}

func (l *Local) DeliverText(ctx context.Context, text string) error {
	for _, segment := range Chunk(text, l.maxLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(l.out, segment); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	_, err := io.WriteString(l.out, "\n")
	return err
}

// destination returns "" when the file already lives in the delivery directory.
func (l *Local) destination(path string) (string, error) {
	if l.dir == "" {
		return "", nil
	}

	dest := filepath.Join(l.dir, filepath.Base(path))
	absSource, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	if absSource == absDest {
		return "", nil
	}
	return dest, nil
}
