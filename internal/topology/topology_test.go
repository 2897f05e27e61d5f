package topology_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/docstore/docstoretest"
	"github.com/kadirbelkuyu/docsnap/internal/topology"
)

func seededSource() *docstoretest.Memory {
	source := docstoretest.NewMemory(docstore.RoleSource)
	source.Seed(docstore.Namespace{Database: "shop", Collection: "users"})
	source.Seed(docstore.Namespace{Database: "shop", Collection: "orders"})
	source.Seed(docstore.Namespace{Database: "shop", Collection: "system.views"})
	source.Seed(docstore.Namespace{Database: "blog", Collection: "posts"})
	source.Seed(docstore.Namespace{Database: "admin", Collection: "system.users"})
	source.Seed(docstore.Namespace{Database: "local", Collection: "startup_log"})
	return source
}

func TestWorkListSkipsSystemNamespaces(t *testing.T) {
	work, err := topology.WorkList(context.Background(), seededSource(), topology.Filter{})
	require.NoError(t, err)
	require.Equal(t, []docstore.Namespace{
		{Database: "blog", Collection: "posts"},
		{Database: "shop", Collection: "orders"},
		{Database: "shop", Collection: "users"},
	}, work)
}

func TestWorkListFilter(t *testing.T) {
	work, err := topology.WorkList(context.Background(), seededSource(), topology.Filter{
		Databases: []string{"shop"},
		Exclude:   []string{"shop.users"},
	})
	require.NoError(t, err)
	require.Equal(t, []docstore.Namespace{{Database: "shop", Collection: "orders"}}, work)

	work, err = topology.WorkList(context.Background(), seededSource(), topology.Filter{Exclude: []string{"shop"}})
	require.NoError(t, err)
	require.Equal(t, []docstore.Namespace{{Database: "blog", Collection: "posts"}}, work)
}

func TestWorkListEmptyEndpoint(t *testing.T) {
	work, err := topology.WorkList(context.Background(), docstoretest.NewMemory(docstore.RoleSource), topology.Filter{})
	require.NoError(t, err)
	require.Empty(t, work)
}

func TestWorkListDistinguishesFailures(t *testing.T) {
	source := seededSource()
	source.SetUnreachable(true)

	_, err := topology.WorkList(context.Background(), source, topology.Filter{})
	var connErr *docstore.ConnectivityError
	require.ErrorAs(t, err, &connErr)

	source.SetUnreachable(false)
	source.SetAuthFailure(true)

	_, err = topology.WorkList(context.Background(), source, topology.Filter{})
	var authErr *docstore.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

func TestListCollectionsSorted(t *testing.T) {
	names, err := topology.ListCollections(context.Background(), seededSource(), "shop")
	require.NoError(t, err)
	require.Equal(t, []string{"orders", "users"}, names)
}
