package stream_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/docstore/docstoretest"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
)

var orders = docstore.Namespace{Database: "shop", Collection: "orders"}

func seed(n int) *docstoretest.Memory {
	source := docstoretest.NewMemory(docstore.RoleSource)
	docs := make([]docstore.Document, n)
	for i := range docs {
		docs[i] = bson.D{{Key: "_id", Value: int32(i)}, {Key: "total", Value: float64(i) * 1.5}}
	}
	source.Seed(orders, docs...)
	return source
}

func TestStreamPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s, err := stream.Open(ctx, seed(5), orders)
	require.NoError(t, err)
	defer s.Close(ctx)

	for i := 0; i < 5; i++ {
		doc, err := s.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, int32(i), doc[0].Value)
	}

	_, err = s.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(5), s.Delivered())
}

func TestStreamInterruptedCarriesProgress(t *testing.T) {
	source := seed(5)
	source.FailFindAfter(orders, 3)

	delivered, err := stream.ForEach(context.Background(), source, orders, func(docstore.Document) error { return nil })

	var interrupted *stream.InterruptedError
	require.ErrorAs(t, err, &interrupted)
	require.Equal(t, int64(3), interrupted.Delivered)
	require.Equal(t, int64(3), delivered)

	var connErr *docstore.ConnectivityError
	require.ErrorAs(t, err, &connErr)
	require.Zero(t, source.OpenCursors())
}

func TestStreamEarlyCloseReleasesCursor(t *testing.T) {
	ctx := context.Background()
	source := seed(10)

	s, err := stream.Open(ctx, source, orders)
	require.NoError(t, err)
	require.Equal(t, 1, source.OpenCursors())

	_, err = s.Next(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	require.Zero(t, source.OpenCursors())

	_, err = s.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestForEachStopsOnCallbackError(t *testing.T) {
	source := seed(4)
	stop := errors.New("stop")

	delivered, err := stream.ForEach(context.Background(), source, orders, func(doc docstore.Document) error {
		if doc[0].Value == int32(1) {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, int64(2), delivered)
	require.Zero(t, source.OpenCursors())
}

func TestOpenUnreachable(t *testing.T) {
	source := seed(1)
	source.SetUnreachable(true)

	_, err := stream.Open(context.Background(), source, orders)
	var connErr *docstore.ConnectivityError
	require.ErrorAs(t, err, &connErr)
}
