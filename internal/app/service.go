package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kadirbelkuyu/docsnap/internal/config"
	"github.com/kadirbelkuyu/docsnap/internal/delivery"
	"github.com/kadirbelkuyu/docsnap/internal/docstore"
	"github.com/kadirbelkuyu/docsnap/internal/job"
	"github.com/kadirbelkuyu/docsnap/internal/replicate"
	"github.com/kadirbelkuyu/docsnap/internal/topology"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
)

// Options carry the per-invocation overrides of the CLI.
type Options struct {
	Databases []string
	Exclude   []string
	Workers   int
	BatchSize int
	Output    string
	Observer  job.Observer
}

type EndpointOpener func(ctx context.Context, role string, cfg config.DatabaseConfig, timeout time.Duration) (docstore.Endpoint, error)

type SinkFactory func(ctx context.Context, cfg config.DeliveryConfig) (delivery.Sink, error)

// Service wires configuration, endpoints, the job controller and a delivery sink.
type Service struct {
	log      *logger.Logger
	open     EndpointOpener
	sink     SinkFactory
	localOut io.Writer
	now      func() time.Time
}

func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{
		log:      log,
		open:     openMongo,
		localOut: os.Stdout,
		now:      time.Now,
	}
	s.sink = func(ctx context.Context, cfg config.DeliveryConfig) (delivery.Sink, error) {
		return delivery.New(ctx, cfg, s.log)
	}
	return s
}

func openMongo(ctx context.Context, role string, cfg config.DatabaseConfig, timeout time.Duration) (docstore.Endpoint, error) {
	return docstore.OpenMongo(ctx, role, cfg.MongoURI(), timeout)
}

// Backup captures the source into an archive staged in a scratch directory,
// hands it to the configured sink and removes the staged copy. An archive the
// sink refuses is moved to the output directory instead.
func (s *Service) Backup(ctx context.Context, cfg *config.Config, opts Options) (*job.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sink, err := s.sink(ctx, cfg.Delivery)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize delivery: %w", err)
	}

	staging, err := os.MkdirTemp("", "docsnap-backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	return s.backup(ctx, cfg, opts, sink, staging, cfg.Job.OutputDir)
}

// BackupLocal keeps the archive in the output directory and prints the report.
func (s *Service) BackupLocal(ctx context.Context, cfg *config.Config, opts Options) (*job.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	outputDir := cfg.Job.OutputDir
	if opts.Output != "" {
		outputDir = opts.Output
	}

	sink, err := delivery.NewLocal("", s.localOut, cfg.Delivery.MaxMessageLength, s.log)
	if err != nil {
		return nil, err
	}
	return s.backup(ctx, cfg, opts, sink, outputDir, "")
}

// backup writes the archive to outputDir. When keepDir is set, an archive that
// could not be delivered is moved there before outputDir is cleaned up.
func (s *Service) backup(ctx context.Context, cfg *config.Config, opts Options, sink delivery.Sink, outputDir, keepDir string) (*job.Report, error) {
	s.log.Info("Starting backup...")

	source, err := s.open(ctx, docstore.RoleSource, cfg.Source, cfg.Job.ConnectTimeout)
	if err != nil {
		report := job.AbortedReport(job.OperationBackup, "failed to connect to source", err)
		report.Source = cfg.Source.Redacted()
		return report, s.deliverReport(ctx, sink, report)
	}
	defer s.closeEndpoint(source)

	controller := job.NewController(job.Options{
		Workers:  pick(opts.Workers, cfg.Job.Workers),
		Logger:   s.log,
		Observer: opts.Observer,
	})

	report := controller.RunBackup(ctx, job.BackupJob{
		Source:     source,
		Filter:     topology.Filter{Databases: opts.Databases, Exclude: opts.Exclude},
		OutputPath: filepath.Join(outputDir, s.archiveName(opts.Databases)),
	})

	if report.Archive != nil {
		if err := sink.DeliverFile(context.WithoutCancel(ctx), report.Archive.Location, "Backup"); err != nil {
			s.log.Errorf("Failed to deliver archive: %v", err)
			report.Reason = fmt.Sprintf("archive was created but could not be delivered: %v", err)
			if keepDir != "" {
				if kept, keepErr := keepArchive(report.Archive.Location, keepDir); keepErr != nil {
					s.log.Errorf("Failed to keep undelivered archive: %v", keepErr)
				} else {
					s.log.Warnf("Undelivered archive kept at %s", kept)
					report.Archive.Location = kept
					report.Reason += fmt.Sprintf("; kept at %s", kept)
				}
			}
			_ = s.deliverReport(ctx, sink, report)
			return report, fmt.Errorf("failed to deliver archive: %w", err)
		}
	}

	return report, s.deliverReport(ctx, sink, report)
}

// Clone copies the selected collections from source to target and delivers the report.
func (s *Service) Clone(ctx context.Context, cfg *config.Config, opts Options) (*job.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateTarget(); err != nil {
		return nil, err
	}

	sink, err := s.sink(ctx, cfg.Delivery)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize delivery: %w", err)
	}

	s.log.Info("Starting clone...")

	source, err := s.open(ctx, docstore.RoleSource, cfg.Source, cfg.Job.ConnectTimeout)
	if err != nil {
		report := job.AbortedReport(job.OperationClone, "failed to connect to source", err)
		report.Source = cfg.Source.Redacted()
		report.Target = cfg.Target.Redacted()
		return report, s.deliverReport(ctx, sink, report)
	}
	defer s.closeEndpoint(source)

	target, err := s.open(ctx, docstore.RoleTarget, cfg.Target, cfg.Job.ConnectTimeout)
	if err != nil {
		report := job.AbortedReport(job.OperationClone, "failed to connect to target", err)
		report.Source = source.Address()
		report.Target = cfg.Target.Redacted()
		return report, s.deliverReport(ctx, sink, report)
	}
	defer s.closeEndpoint(target)

	controller := job.NewController(job.Options{
		Workers:  pick(opts.Workers, cfg.Job.Workers),
		Logger:   s.log,
		Observer: opts.Observer,
	})

	report := controller.RunClone(ctx, job.CloneJob{
		Source: source,
		Target: target,
		Filter: topology.Filter{Databases: opts.Databases, Exclude: opts.Exclude},
		Replication: replicate.Options{
			BatchSize:   pick(opts.BatchSize, cfg.Job.BatchSize),
			CopyIndexes: cfg.Job.CopyIndexes,
			AllowCreate: cfg.Job.AllowCreateTarget(),
		},
	})

	return report, s.deliverReport(ctx, sink, report)
}

// ListDatabases returns the user databases of the source endpoint.
func (s *Service) ListDatabases(ctx context.Context, cfg *config.Config) ([]docstore.DatabaseInfo, error) {
	if !cfg.Source.IsSet() {
		return nil, fmt.Errorf("source endpoint is not configured")
	}

	source, err := s.open(ctx, docstore.RoleSource, cfg.Source, cfg.Job.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer s.closeEndpoint(source)

	infos, err := source.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	databases := make([]docstore.DatabaseInfo, 0, len(infos))
	for _, info := range infos {
		if topology.IsSystemDatabase(info.Name) {
			continue
		}
		databases = append(databases, info)
	}
	return databases, nil
}

// deliverReport always runs, even after cancellation, so every job ends with a summary.
func (s *Service) deliverReport(ctx context.Context, sink delivery.Sink, report *job.Report) error {
	if err := sink.DeliverText(context.WithoutCancel(ctx), report.String()); err != nil {
		s.log.Errorf("Failed to deliver report: %v", err)
		return fmt.Errorf("failed to deliver report: %w", err)
	}
	return nil
}

// keepArchive moves path into dir, copying when a rename crosses filesystems.
func keepArchive(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to copy archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return dest, nil
}

func (s *Service) closeEndpoint(ep docstore.Endpoint) {
	if err := ep.Close(context.Background()); err != nil {
		s.log.Warnf("Failed to close %s endpoint: %v", ep.Role(), err)
	}
}

func (s *Service) archiveName(databases []string) string {
	label := "all"
	if len(databases) > 0 {
		label = strings.Join(databases, "+")
	}
	return fmt.Sprintf("%s_%s.tar.gz", sanitize(label), s.now().Format("20060102_150405"))
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '+':
			return r
		default:
			return '_'
		}
	}, name)
}

func pick(override, configured int) int {
	if override > 0 {
		return override
	}
	return configured
}
