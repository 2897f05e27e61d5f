package job

import (
	"context"
	"errors"

	"github.com/kadirbelkuyu/docsnap/internal/archive"
	"github.com/kadirbelkuyu/docsnap/internal/codec"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/replicate"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
)

// Kind classifies a failure for the report.
type Kind string

const (
	KindNone              Kind = ""
	KindConnectivity      Kind = "connectivity"
	KindAuthentication    Kind = "authentication"
	KindStreamInterrupted Kind = "stream interrupted"
	KindSerialization     Kind = "serialization"
	KindPackaging         Kind = "packaging"
	KindTargetMissing     Kind = "target missing"
	KindCancelled         Kind = "cancelled"
	KindOther             Kind = "error"
)

// ErrCancelled marks items that were never started because the job was cancelled.
var ErrCancelled = errors.New("job cancelled before the collection was started")

// KindOf maps an error onto the failure taxonomy. A stream interruption wins
// over the connectivity error it wraps, since it carries partial progress.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var (
		authErr     *docstore.AuthenticationError
		interrupted *stream.InterruptedError
		connErr     *docstore.ConnectivityError
		serErr      *codec.SerializationError
		packErr     *archive.PackagingError
	)

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &interrupted):
		return KindStreamInterrupted
	case errors.As(err, &connErr):
		return KindConnectivity
	case errors.As(err, &serErr):
		return KindSerialization
	case errors.As(err, &packErr):
		return KindPackaging
	case errors.Is(err, replicate.ErrTargetMissing):
		return KindTargetMissing
	default:
		return KindOther
	}
}
