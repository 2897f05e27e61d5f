// Package topology enumerates the databases and collections an endpoint exposes.
package topology

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

// systemDatabases hold cluster metadata rather than user data.
var systemDatabases = map[string]struct{}{
	"admin":  {},
	"config": {},
	"local":  {},
}

// Filter narrows a work list. Empty Databases means every user database.
type Filter struct {
	Databases []string
	Exclude   []string
}

// IsSystemDatabase reports whether name is one of the cluster-internal databases.
func IsSystemDatabase(name string) bool {
	_, ok := systemDatabases[name]
	return ok
}

func ListDatabases(ctx context.Context, ep docstore.Endpoint) ([]string, error) {
	infos, err := ep.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if IsSystemDatabase(info.Name) {
			continue
		}
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names, nil
}

func ListCollections(ctx context.Context, ep docstore.Endpoint, database string) ([]string, error) {
	names, err := ep.ListCollections(ctx, database)
	if err != nil {
		return nil, err
	}

	collections := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "system.") {
			continue
		}
		collections = append(collections, name)
	}
	sort.Strings(collections)
	return collections, nil
}

// WorkList returns every (database, collection) pair selected by filter, in
// database then collection order. A cluster without user databases yields an
// empty list and no error.
func WorkList(ctx context.Context, ep docstore.Endpoint, filter Filter) ([]docstore.Namespace, error) {
	databases, err := ListDatabases(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	var work []docstore.Namespace
	for _, database := range databases {
		if !filter.allows(database) {
			continue
		}

		collections, err := ListCollections(ctx, ep, database)
		if err != nil {
			return nil, fmt.Errorf("failed to list collections of %s: %w", database, err)
		}

		for _, collection := range collections {
			ns := docstore.Namespace{Database: database, Collection: collection}
			if filter.excludes(ns) {
				continue
			}
			work = append(work, ns)
		}
	}

	return work, nil
}

func (f Filter) allows(database string) bool {
	if len(f.Databases) == 0 {
		return true
	}
	for _, name := range f.Databases {
		if name == database {
			return true
		}
	}
	return false
}

// excludes matches either a whole database ("shop") or one namespace ("shop.orders").
func (f Filter) excludes(ns docstore.Namespace) bool {
	for _, pattern := range f.Exclude {
		if pattern == ns.Database || pattern == ns.String() {
			return true
		}
	}
	return false
}
