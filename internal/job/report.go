package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kadirbelkuyu/docsnap/internal/archive"
)

const (
	OperationBackup = "backup"
	OperationClone  = "clone"
)

// Report is the single summary every job produces, whatever its outcome.
type Report struct {
	Operation string
	Source    string
	Target    string

	State  State
	Reason string
	Err    error

	Items   []ItemOutcome
	Archive *archive.BackupArchive

	StartedAt   time.Time
	CompletedAt time.Time
}

func newReport(operation string) *Report {
	return &Report{
		Operation: operation,
		State:     StateCreated,
		StartedAt: time.Now(),
	}
}

func (r *Report) Succeeded() int {
	return r.count(StatusSucceeded)
}

func (r *Report) Failed() int {
	return r.count(StatusFailed)
}

// Documents sums documents of succeeded items.
func (r *Report) Documents() int64 {
	var total int64
	for _, item := range r.Items {
		if item.Status == StatusSucceeded {
			total += item.Documents
		}
	}
	return total
}

// Item returns the outcome recorded for database.collection.
func (r *Report) Item(name string) (ItemOutcome, bool) {
	for _, item := range r.Items {
		if item.Namespace.String() == name {
			return item, true
		}
	}
	return ItemOutcome{}, false
}

func (r *Report) count(status Status) int {
	n := 0
	for _, item := range r.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	var b strings.Builder

	title := strings.ToUpper(r.Operation[:1]) + r.Operation[1:]
	fmt.Fprintf(&b, "%s %s\n", title, r.State)
	if r.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", r.Source)
	}
	if r.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", r.Target)
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", r.Reason)
	}

	if len(r.Items) > 0 {
		fmt.Fprintf(&b, "Collections: %d succeeded, %d failed, %s documents\n",
			r.Succeeded(), r.Failed(), humanize.Comma(r.Documents()))
	}

	if r.Archive != nil {
		fmt.Fprintf(&b, "Archive: %s (%s, sha256 %s)\n",
			r.Archive.Location, humanize.Bytes(uint64(r.Archive.Size)), shortChecksum(r.Archive.Checksum))
	}

	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}

	var rejected []ItemOutcome
	var failed []ItemOutcome
	for _, item := range r.Items {
		switch {
		case item.Status == StatusFailed:
			failed = append(failed, item)
		case item.Rejected > 0:
			rejected = append(rejected, item)
		}
	}

	if len(failed) > 0 {
		b.WriteString("Failed:\n")
		for _, item := range failed {
			fmt.Fprintf(&b, "  - %s [%s]: %s\n", item.Namespace, item.Kind, item.Reason)
		}
	}
	if len(rejected) > 0 {
		b.WriteString("Rejected documents:\n")
		for _, item := range rejected {
			fmt.Fprintf(&b, "  - %s: %s rejected\n", item.Namespace, humanize.Comma(int64(item.Rejected)))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func shortChecksum(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}

// AbortedReport describes a job that failed before the controller could run
// it, such as when an endpoint refuses the connection.
func AbortedReport(operation, reason string, err error) *Report {
	report := newReport(operation)
	report.State = StateAborted
	report.Err = err
	report.Reason = fmt.Sprintf("%s: %v", reason, err)
	report.CompletedAt = report.StartedAt
	return report
}
