// Package replicate copies collections from a source endpoint to a target
// endpoint with batched, unordered inserts.
package replicate

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

const DefaultBatchSize = 500

// ErrTargetMissing is returned when implicit database creation is disabled
// and the target has no database of the same name.
var ErrTargetMissing = errors.New("target database does not exist")

// DuplicateKeyError records one document the target rejected because its key
// already exists there. It never aborts the rest of the batch.
type DuplicateKeyError struct {
	Namespace docstore.Namespace
	ID        interface{}
	Message   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key in %s for _id %v: %s", e.Namespace, e.ID, e.Message)
}

// WriteError is any other per-document rejection.
type WriteError struct {
	ID      interface{}
	Code    int
	Message string
}

type Outcome struct {
	Namespace     docstore.Namespace
	Read          int64
	Inserted      int64
	IndexesCopied int
	Duplicates    []*DuplicateKeyError
	WriteErrors   []WriteError
}

// Rejected returns how many documents the target refused.
func (o Outcome) Rejected() int {
	return len(o.Duplicates) + len(o.WriteErrors)
}

type Options struct {
	BatchSize   int
	CopyIndexes bool
	AllowCreate bool
	Logger      *logger.Logger
}

type Engine struct {
	options Options
}

func New(options Options) *Engine {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.Logger == nil {
		options.Logger = logger.Discard()
	}
	return &Engine{options: options}
}

// Replicate appends every document of ns on source to the identically named
// collection on target. The source is only read.
func (e *Engine) Replicate(ctx context.Context, source, target docstore.Endpoint, ns docstore.Namespace) (Outcome, error) {
	outcome := Outcome{Namespace: ns}
	log := e.options.Logger.WithField("namespace", ns.String())

	// Checked before the source cursor is opened so an empty collection
	// still reports a dead target.
	if err := target.Ping(ctx); err != nil {
		return outcome, docstore.Classify(docstore.RoleTarget, err)
	}

	if !e.options.AllowCreate {
		if err := ensureTargetDatabase(ctx, target, ns.Database); err != nil {
			return outcome, err
		}
	}

	if e.options.CopyIndexes {
		copied, err := copyIndexes(ctx, source, target, ns)
		if err != nil {
			return outcome, fmt.Errorf("failed to clone indexes for %s: %w", ns, err)
		}
		outcome.IndexesCopied = copied
	}

	batch := make([]docstore.Document, 0, e.options.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.insertBatch(ctx, target, ns, batch, &outcome); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	read, err := stream.ForEach(ctx, source, ns, func(doc docstore.Document) error {
		batch = append(batch, doc)
		if len(batch) >= e.options.BatchSize {
			return flush()
		}
		return nil
	})
	outcome.Read = read
	if err != nil {
		return outcome, err
	}

	if err := flush(); err != nil {
		return outcome, err
	}

	if rejected := outcome.Rejected(); rejected > 0 {
		log.Warnf("Collection %s cloned with %d rejected documents", ns, rejected)
	} else {
		log.Debugf("Collection %s cloned: %d documents", ns, outcome.Inserted)
	}
	return outcome, nil
}

func (e *Engine) insertBatch(ctx context.Context, target docstore.Endpoint, ns docstore.Namespace, batch []docstore.Document, outcome *Outcome) error {
	result, err := target.InsertMany(ctx, ns, batch)
	if err != nil {
		return fmt.Errorf("failed to insert batch into %s: %w", ns, docstore.Classify(docstore.RoleTarget, err))
	}

	outcome.Inserted += int64(result.Inserted)
	for _, failure := range result.Failures {
		var id interface{}
		if failure.Index >= 0 && failure.Index < len(batch) {
			id = documentID(batch[failure.Index])
		}

		if docstore.IsDuplicateKey(failure.Code) {
			outcome.Duplicates = append(outcome.Duplicates, &DuplicateKeyError{
				Namespace: ns,
				ID:        id,
				Message:   failure.Message,
			})
			continue
		}
		outcome.WriteErrors = append(outcome.WriteErrors, WriteError{
			ID:      id,
			Code:    failure.Code,
			Message: failure.Message,
		})
	}
	return nil
}

func ensureTargetDatabase(ctx context.Context, target docstore.Endpoint, database string) error {
	databases, err := target.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("failed to check target databases: %w", docstore.Classify(docstore.RoleTarget, err))
	}
	for _, db := range databases {
		if db.Name == database {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTargetMissing, database)
}

func copyIndexes(ctx context.Context, source, target docstore.Endpoint, ns docstore.Namespace) (int, error) {
	specs, err := source.ListIndexes(ctx, ns)
	if err != nil {
		return 0, err
	}

	filtered := make([]docstore.IndexSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "_id_" {
			continue
		}
		filtered = append(filtered, spec)
	}

	if len(filtered) == 0 {
		return 0, nil
	}
	if err := target.CreateIndexes(ctx, ns, filtered); err != nil {
		return 0, docstore.Classify(docstore.RoleTarget, err)
	}
	return len(filtered), nil
}

func documentID(doc docstore.Document) interface{} {
	for _, elem := range doc {
		if elem.Key == "_id" {
			return elem.Value
		}
	}
	return nil
}
