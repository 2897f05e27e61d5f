package replicate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/docstore/docstoretest"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
)

var orders = docstore.Namespace{Database: "shop", Collection: "orders"}

func seedOrders(m *docstoretest.Memory, n int) {
	for i := 1; i <= n; i++ {
		m.Seed(orders, bson.D{{Key: "_id", Value: int32(i)}, {Key: "total", Value: float64(i) * 9.5}})
	}
}

func TestReplicateCopiesEveryDocumentInOrder(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 7)

	engine := New(Options{BatchSize: 3, AllowCreate: true})
	outcome, err := engine.Replicate(context.Background(), source, target, orders)
	require.NoError(t, err)

	assert.Equal(t, int64(7), outcome.Read)
	assert.Equal(t, int64(7), outcome.Inserted)
	assert.Zero(t, outcome.Rejected())
	assert.Equal(t, source.Documents(orders), target.Documents(orders))

	// 3 + 3 + 1
	assert.Equal(t, 3, target.Writes())
	assert.Zero(t, source.Writes())
	assert.Zero(t, source.OpenCursors())
}

func TestReplicateEmptyCollection(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	source.Seed(orders)

	outcome, err := New(Options{AllowCreate: true}).Replicate(context.Background(), source, target, orders)
	require.NoError(t, err)
	assert.Zero(t, outcome.Inserted)
	assert.Zero(t, target.Writes())
}

func TestReplicateAppendsAndRecordsDuplicates(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 4)
	target.Seed(orders, bson.D{{Key: "_id", Value: int32(2)}, {Key: "total", Value: 1.0}})

	outcome, err := New(Options{AllowCreate: true}).Replicate(context.Background(), source, target, orders)
	require.NoError(t, err)

	assert.Equal(t, int64(4), outcome.Read)
	assert.Equal(t, int64(3), outcome.Inserted)
	require.Len(t, outcome.Duplicates, 1)
	assert.Equal(t, int32(2), outcome.Duplicates[0].ID)
	assert.Equal(t, orders, outcome.Duplicates[0].Namespace)
	assert.Empty(t, outcome.WriteErrors)

	docs := target.Documents(orders)
	require.Len(t, docs, 4)
	// the pre-existing document is untouched
	assert.Equal(t, 1.0, docs[0][1].Value)
}

func TestReplicateTargetMissingWithoutAllowCreate(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 2)

	_, err := New(Options{AllowCreate: false}).Replicate(context.Background(), source, target, orders)
	require.ErrorIs(t, err, ErrTargetMissing)
	assert.Zero(t, target.Writes())

	target.Seed(docstore.Namespace{Database: "shop", Collection: "users"})
	outcome, err := New(Options{AllowCreate: false}).Replicate(context.Background(), source, target, orders)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Inserted)
}

func TestReplicateCopiesSecondaryIndexes(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 1)
	source.SeedIndexes(orders,
		docstore.IndexSpec{Name: "_id_", Keys: bson.D{{Key: "_id", Value: int32(1)}}},
		docstore.IndexSpec{Name: "customer_1", Keys: bson.D{{Key: "customer", Value: int32(1)}}, Unique: true},
	)

	outcome, err := New(Options{AllowCreate: true, CopyIndexes: true}).Replicate(context.Background(), source, target, orders)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.IndexesCopied)

	indexes := target.Indexes(orders)
	require.Len(t, indexes, 1)
	assert.Equal(t, "customer_1", indexes[0].Name)
	assert.True(t, indexes[0].Unique)
}

func TestReplicateTargetUnreachable(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 3)
	target.SetUnreachable(true)

	_, err := New(Options{AllowCreate: true}).Replicate(context.Background(), source, target, orders)
	require.Error(t, err)

	var connErr *docstore.ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, docstore.RoleTarget, connErr.Role)
	assert.Zero(t, source.OpenCursors())
}

func TestReplicateSourceInterruptedKeepsPartialProgress(t *testing.T) {
	source := docstoretest.NewMemory(docstore.RoleSource)
	target := docstoretest.NewMemory(docstore.RoleTarget)
	seedOrders(source, 5)
	source.FailFindAfter(orders, 2)

	outcome, err := New(Options{BatchSize: 1, AllowCreate: true}).Replicate(context.Background(), source, target, orders)

	var interrupted *stream.InterruptedError
	require.True(t, errors.As(err, &interrupted))
	assert.Equal(t, int64(2), interrupted.Delivered)
	assert.Equal(t, int64(2), outcome.Read)
	assert.Equal(t, int64(2), outcome.Inserted)

	var connErr *docstore.ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, docstore.RoleSource, connErr.Role)
}
