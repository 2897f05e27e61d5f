// Package docstore is the seam between the engine and a document-store cluster.
// An Endpoint pairs a connection descriptor with a live client handle and is
// owned by the job that opened it.
package docstore

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	RoleSource = "source"
	RoleTarget = "target"
)

// Document is an ordered mapping of field names to values.
type Document = bson.D

type Namespace struct {
	Database   string
	Collection string
}

func (ns Namespace) String() string {
	return ns.Database + "." + ns.Collection
}

type DatabaseInfo struct {
	Name      string
	SizeBytes int64
}

type IndexSpec struct {
	Name               string
	Keys               bson.D
	Unique             bool
	Sparse             bool
	ExpireAfterSeconds *int32
}

// WriteFailure describes one document rejected by an unordered insert.
type WriteFailure struct {
	Index   int
	Code    int
	Message string
}

type InsertResult struct {
	Inserted int
	Failures []WriteFailure
}

// Cursor is a forward-only sequence over one collection.
// Next returns io.EOF once the sequence is exhausted.
type Cursor interface {
	Next(ctx context.Context) (Document, error)
	Close(ctx context.Context) error
}

type Endpoint interface {
	Role() string
	Address() string
	Ping(ctx context.Context) error
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
	Find(ctx context.Context, ns Namespace) (Cursor, error)
	InsertMany(ctx context.Context, ns Namespace, docs []Document) (InsertResult, error)
	ListIndexes(ctx context.Context, ns Namespace) ([]IndexSpec, error)
	CreateIndexes(ctx context.Context, ns Namespace, specs []IndexSpec) error
	Close(ctx context.Context) error
}

// RedactURI masks the password of a connection string for display.
func RedactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	userinfo, hosts, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return uri
	}
	return scheme + "://" + user + ":xxxxx@" + hosts
}
