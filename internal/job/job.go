// Package job drives backup and clone jobs: it enumerates the work list,
// processes collections on a bounded worker pool and settles the outcome of
// every collection into a Report.
package job

import (
	"time"

	"github.com/kadirbelkuyu/docsnap/internal/docstore"
)

type State int

const (
	StateCreated State = iota
	StateEnumerating
	StateProcessing
	StateFinalizing
	StateCompleted
	StateCompletedWithErrors
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateEnumerating:
		return "enumerating"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateCompletedWithErrors:
		return "completed with errors"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCompletedWithErrors || s == StateAborted
}

type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ItemOutcome is the per-collection row of the outcome table.
type ItemOutcome struct {
	Namespace docstore.Namespace
	Status    Status

	// Documents counts documents captured or inserted, including the partial
	// progress of a failed item.
	Documents int64
	Rejected  int

	Kind     Kind
	Reason   string
	Err      error
	Duration time.Duration
}

func (o *ItemOutcome) succeed(documents int64) {
	o.Status = StatusSucceeded
	o.Documents = documents
}

func (o *ItemOutcome) fail(documents int64, err error) {
	o.Status = StatusFailed
	o.Documents = documents
	o.Err = err
	o.Kind = KindOf(err)
	o.Reason = err.Error()
}

// Observer is notified as the job progresses. Calls may come from several
// worker goroutines at once.
type Observer interface {
	Planned(total int)
	ItemStarted(name string)
	ItemFinished(name string, err error)
}

type nopObserver struct{}

func (nopObserver) Planned(int)                {}
func (nopObserver) ItemStarted(string)         {}
func (nopObserver) ItemFinished(string, error) {}
