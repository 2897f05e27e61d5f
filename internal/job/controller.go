package job

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kadirbelkuyu/docsnap/internal/archive"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/replicate"
	"github.com/kadirbelkuyu/docsnap/internal/stream"
	"github.com/kadirbelkuyu/docsnap/internal/topology"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

type Options struct {
	Workers  int
	Logger   *logger.Logger
	Observer Observer
}

type Controller struct {
	pool     *WorkerPool
	log      *logger.Logger
	observer Observer
}

func NewController(options Options) *Controller {
	if options.Logger == nil {
		options.Logger = logger.Discard()
	}
	if options.Observer == nil {
		options.Observer = nopObserver{}
	}
	return &Controller{
		pool:     NewWorkerPool(options.Workers),
		log:      options.Logger,
		observer: options.Observer,
	}
}

type BackupJob struct {
	Source     docstore.Endpoint
	Filter     topology.Filter
	OutputPath string
	// ScratchDir holds temporary shard files. Empty means the system temp directory.
	ScratchDir string
}

type CloneJob struct {
	Source      docstore.Endpoint
	Target      docstore.Endpoint
	Filter      topology.Filter
	Replication replicate.Options
}

// RunBackup captures every collection of the work list into one archive.
// Item failures are recorded in the report and never returned.
func (c *Controller) RunBackup(ctx context.Context, job BackupJob) *Report {
	report := newReport(OperationBackup)
	report.Source = job.Source.Address()
	defer c.complete(report)

	c.transition(report, StateEnumerating)
	items, ok := c.enumerate(ctx, report, job.Source, job.Filter)
	if !ok {
		return report
	}
	if len(items) == 0 {
		report.Reason = "nothing to do"
		c.transition(report, StateCompleted)
		return report
	}

	arc, err := archive.Create(job.OutputPath)
	if err != nil {
		c.abort(report, "failed to create archive", err)
		return report
	}
	defer arc.Close()

	c.transition(report, StateProcessing)
	c.process(ctx, report, func(ctx context.Context, ns docstore.Namespace) (int64, int, error) {
		documents, err := c.backupItem(ctx, job.Source, arc, ns, job.ScratchDir)
		return documents, 0, err
	})

	c.transition(report, StateFinalizing)
	if c.settleFailures(ctx, report) {
		return report
	}

	result, err := arc.Finalize()
	if err != nil {
		c.abort(report, "failed to finalize archive", err)
		return report
	}
	report.Archive = result
	c.settle(report)
	return report
}

// RunClone copies every collection of the work list from source to target.
func (c *Controller) RunClone(ctx context.Context, job CloneJob) *Report {
	report := newReport(OperationClone)
	report.Source = job.Source.Address()
	report.Target = job.Target.Address()
	defer c.complete(report)

	c.transition(report, StateEnumerating)
	if docstore.SameDeployment(job.Source.Address(), job.Target.Address()) {
		c.abort(report, "invalid clone", fmt.Errorf("source and target are the same endpoint: %s", report.Source))
		return report
	}
	if err := job.Target.Ping(ctx); err != nil {
		c.abort(report, "target is not reachable", docstore.Classify(docstore.RoleTarget, err))
		return report
	}

	items, ok := c.enumerate(ctx, report, job.Source, job.Filter)
	if !ok {
		return report
	}
	if len(items) == 0 {
		report.Reason = "nothing to do"
		c.transition(report, StateCompleted)
		return report
	}

	replication := job.Replication
	replication.Logger = c.log
	engine := replicate.New(replication)

	c.transition(report, StateProcessing)
	c.process(ctx, report, func(ctx context.Context, ns docstore.Namespace) (int64, int, error) {
		outcome, err := engine.Replicate(ctx, job.Source, job.Target, ns)
		return outcome.Inserted, outcome.Rejected(), err
	})

	c.transition(report, StateFinalizing)
	if c.settleFailures(ctx, report) {
		return report
	}
	c.settle(report)
	return report
}

func (c *Controller) enumerate(ctx context.Context, report *Report, source docstore.Endpoint, filter topology.Filter) ([]docstore.Namespace, bool) {
	items, err := topology.WorkList(ctx, source, filter)
	if err != nil {
		c.abort(report, "failed to enumerate source", docstore.Classify(docstore.RoleSource, err))
		return nil, false
	}

	report.Items = make([]ItemOutcome, len(items))
	for i, ns := range items {
		report.Items[i] = ItemOutcome{Namespace: ns, Status: StatusPending}
	}
	c.log.Infof("Work list: %d collections", len(items))
	c.observer.Planned(len(items))
	return items, true
}

type itemFunc func(ctx context.Context, ns docstore.Namespace) (documents int64, rejected int, err error)

// process fills the outcome table. Each worker owns exactly one row.
func (c *Controller) process(ctx context.Context, report *Report, run itemFunc) {
	c.pool.Run(ctx, len(report.Items),
		func(ctx context.Context, i int) {
			item := &report.Items[i]
			name := item.Namespace.String()
			log := c.log.WithFields(logrus.Fields{
				"database":   item.Namespace.Database,
				"collection": item.Namespace.Collection,
			})

			c.observer.ItemStarted(name)
			log.Debugf("Processing %s", name)

			started := time.Now()
			documents, rejected, err := run(ctx, item.Namespace)
			item.Duration = time.Since(started)
			item.Rejected = rejected

			if err != nil {
				item.fail(documents, err)
				log.Errorf("Collection %s failed after %d documents: %v", name, documents, err)
			} else {
				item.succeed(documents)
				log.Infof("Collection %s done: %d documents", name, documents)
			}
			c.observer.ItemFinished(name, err)
		},
		func(i int) {
			item := &report.Items[i]
			item.fail(0, ErrCancelled)
			c.observer.ItemFinished(item.Namespace.String(), ErrCancelled)
		},
	)
}

func (c *Controller) backupItem(ctx context.Context, source docstore.Endpoint, arc *archive.Archive, ns docstore.Namespace, scratchDir string) (int64, error) {
	buf, err := archive.NewShardBuffer(scratchDir, ns)
	if err != nil {
		return 0, &archive.PackagingError{Op: "create shard", Err: err}
	}
	defer func() {
		if err := buf.Release(); err != nil {
			c.log.Warnf("Failed to remove temporary shard for %s: %v", ns, err)
		}
	}()

	delivered, err := stream.ForEach(ctx, source, ns, buf.Write)
	if err != nil {
		return delivered, err
	}

	shard, err := buf.Seal()
	if err != nil {
		return delivered, &archive.PackagingError{Op: "seal shard", Err: err}
	}
	if _, err := arc.AddShard(shard); err != nil {
		return delivered, err
	}
	return shard.Count, nil
}

// settleFailures handles the outcomes that abort the job before any result
// is published. It reports whether the job was aborted.
func (c *Controller) settleFailures(ctx context.Context, report *Report) bool {
	if ctx.Err() != nil {
		c.abort(report, "job cancelled", ctx.Err())
		return true
	}
	if failed := report.Failed(); report.Succeeded() == 0 && failed > 0 {
		report.Reason = fmt.Sprintf("all %d collections failed", failed)
		c.transition(report, StateAborted)
		return true
	}
	return false
}

func (c *Controller) settle(report *Report) {
	if report.Failed() > 0 {
		c.transition(report, StateCompletedWithErrors)
		return
	}
	c.transition(report, StateCompleted)
}

func (c *Controller) abort(report *Report, reason string, err error) {
	report.Err = err
	report.Reason = fmt.Sprintf("%s: %v", reason, err)
	c.log.Errorf("%s %s", report.Operation, report.Reason)
	c.transition(report, StateAborted)
}

func (c *Controller) transition(report *Report, next State) {
	c.log.Debugf("%s job: %s -> %s", report.Operation, report.State, next)
	report.State = next
}

func (c *Controller) complete(report *Report) {
	report.CompletedAt = time.Now()
	c.log.Infof("%s %s: %d succeeded, %d failed", report.Operation, report.State, report.Succeeded(), report.Failed())
}
