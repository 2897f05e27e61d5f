package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirbelkuyu/docsnap/internal/archive"
	"github.com/kadirbelkuyu/docsnap/internal/codec"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/replicate"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
)

func TestKindOf(t *testing.T) {
	conn := &docstore.ConnectivityError{Role: docstore.RoleSource, Err: errors.New("refused")}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), KindCancelled},
		{"auth", &docstore.AuthenticationError{Role: docstore.RoleSource, Err: errors.New("bad")}, KindAuthentication},
		{"connectivity", conn, KindConnectivity},
		{"interrupted wins over connectivity", &stream.InterruptedError{Delivered: 4, Err: conn}, KindStreamInterrupted},
		{"serialization", &codec.SerializationError{Path: "items.2.price", Err: errors.New("bad kind")}, KindSerialization},
		{"packaging", &archive.PackagingError{Op: "finalize", Err: errors.New("disk full")}, KindPackaging},
		{"target missing", fmt.Errorf("%w: shop", replicate.ErrTargetMissing), KindTargetMissing},
		{"other", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
