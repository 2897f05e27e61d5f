package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/docsnap/internal/app"
	"github.com/kadirbelkuyu/docsnap/internal/config"
	"github.com/kadirbelkuyu/docsnap/internal/job"
	"github.com/kadirbelkuyu/docsnap/internal/profiles"
	"github.com/kadirbelkuyu/docsnap/pkg/logger"
	"github.com/kadirbelkuyu/docsnap/pkg/progress"
)

var rootCmd = &cobra.Command{
	Use:   "docsnap",
	Short: "Backup and clone MongoDB clusters",
	Long:  `Capture every collection of a MongoDB deployment into one portable archive, or clone collections directly between two deployments.`,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create an archive and hand it to the configured delivery sink",
	RunE:  runBackup,
}

var backupLocalCmd = &cobra.Command{
	Use:   "backup-local",
	Short: "Create an archive and keep it in the output directory",
	RunE:  runBackupLocal,
}

var cloneCmd = &cobra.Command{
	Use:   "clone",
	Short: "Copy collections from the source to the target endpoint",
	RunE:  runClone,
}

var listDbCmd = &cobra.Command{
	Use:   "list-databases",
	Short: "List user databases available on the source endpoint",
	RunE:  runListDatabases,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage saved endpoint profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save <alias>",
	Short: "Save an endpoint profile, prompting for details unless --uri is given",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesSave,
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <alias>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesDelete,
}

var (
	configPath    string
	sourceProfile string
	targetProfile string
	profilesDir   string
	databases     []string
	excludes      []string
	workers       int
	batchSize     int
	outputDir     string
	profileURI    string
	verbose       bool
)

// errJobFailed carries the exit status of a job that produced a report.
type errJobFailed struct {
	state job.State
}

func (e *errJobFailed) Error() string {
	return fmt.Sprintf("job %s", e.state)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", "configs", "Directory holding saved endpoint profiles")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	for _, cmd := range []*cobra.Command{backupCmd, backupLocalCmd, cloneCmd, listDbCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
		cmd.Flags().StringVar(&sourceProfile, "source-profile", "", "Saved profile to use as the source endpoint")
	}

	for _, cmd := range []*cobra.Command{backupCmd, backupLocalCmd, cloneCmd} {
		cmd.Flags().StringSliceVar(&databases, "db", nil, "Only include these databases")
		cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Skip a database or a database.collection")
		cmd.Flags().IntVar(&workers, "workers", 0, "Number of collections processed in parallel")
	}

	backupLocalCmd.Flags().StringVar(&outputDir, "output", "", "Directory the archive is written to")

	cloneCmd.Flags().StringVar(&targetProfile, "target-profile", "", "Saved profile to use as the target endpoint")
	cloneCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Documents per insert batch")

	profilesSaveCmd.Flags().StringVar(&profileURI, "uri", "", "MongoDB connection string")

	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesSaveCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(backupLocalCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(listDbCmd)
	rootCmd.AddCommand(profilesCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)

		var failed *errJobFailed
		if errors.As(err, &failed) && failed.state == job.StateCompletedWithErrors {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runBackup(cmd *cobra.Command, args []string) error {
	return runJob(cmd, "Backup", func(ctx context.Context, svc *app.Service, cfg *config.Config, opts app.Options) (*job.Report, error) {
		return svc.Backup(ctx, cfg, opts)
	})
}

func runBackupLocal(cmd *cobra.Command, args []string) error {
	return runJob(cmd, "Backup", func(ctx context.Context, svc *app.Service, cfg *config.Config, opts app.Options) (*job.Report, error) {
		return svc.BackupLocal(ctx, cfg, opts)
	})
}

func runClone(cmd *cobra.Command, args []string) error {
	return runJob(cmd, "Clone", func(ctx context.Context, svc *app.Service, cfg *config.Config, opts app.Options) (*job.Report, error) {
		return svc.Clone(ctx, cfg, opts)
	})
}

type workflow func(ctx context.Context, svc *app.Service, cfg *config.Config, opts app.Options) (*job.Report, error)

func runJob(cmd *cobra.Command, title string, run workflow) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer log.Close()

	bar := progress.NewBar(1, title)
	defer bar.Finish()

	report, err := run(cmd.Context(), app.NewService(log), cfg, app.Options{
		Databases: databases,
		Exclude:   excludes,
		Workers:   workers,
		BatchSize: batchSize,
		Output:    outputDir,
		Observer:  bar,
	})
	if err != nil {
		return err
	}

	if report.State != job.StateCompleted {
		return &errJobFailed{state: report.State}
	}
	return nil
}

func runListDatabases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer log.Close()

	dbs, err := app.NewService(log).ListDatabases(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	fmt.Printf("\nDatabases on %s:\n", cfg.Source.Redacted())
	fmt.Println(strings.Repeat("=", 36))
	for i, db := range dbs {
		fmt.Printf("%d. %s (Size: %s)\n", i+1, db.Name, humanize.Bytes(uint64(db.SizeBytes)))
	}
	fmt.Printf("\nTotal databases: %d\n", len(dbs))
	return nil
}

func runProfilesList(cmd *cobra.Command, args []string) error {
	list, err := profiles.NewManager(profilesDir).List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Printf("No profiles in %s\n", profilesDir)
		return nil
	}

	for _, profile := range list {
		fmt.Printf("%s\t%s\t%s\n", profile.Name, profile.Address, humanize.Time(profile.Modified))
	}
	return nil
}

func runProfilesSave(cmd *cobra.Command, args []string) error {
	endpoint := &config.DatabaseConfig{Type: "mongo", URI: profileURI}
	if profileURI == "" {
		prompted, err := app.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PromptEndpoint(args[0])
		if err != nil {
			return err
		}
		endpoint = prompted
	}

	profile, err := profiles.NewManager(profilesDir).Save(args[0], endpoint)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	fmt.Printf("Saved profile %s (%s) to %s\n", profile.Name, profile.Address, profile.Path)
	return nil
}

func runProfilesDelete(cmd *cobra.Command, args []string) error {
	if err := profiles.NewManager(profilesDir).Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted profile %s\n", args[0])
	return nil
}

// loadConfig reads --config when given and overlays saved profiles on top.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load config: %w", err)
		}
		cfg = loaded
	}

	manager := profiles.NewManager(profilesDir)
	if sourceProfile != "" {
		endpoint, err := manager.Load(sourceProfile)
		if err != nil {
			return nil, fmt.Errorf("cannot load source profile: %w", err)
		}
		cfg.Source = *endpoint
	}
	if targetProfile != "" {
		endpoint, err := manager.Load(targetProfile)
		if err != nil {
			return nil, fmt.Errorf("cannot load target profile: %w", err)
		}
		cfg.Target = *endpoint
	}

	if configPath == "" && sourceProfile == "" {
		return nil, fmt.Errorf("either --config or --source-profile is required")
	}

	cfg.ApplyDefaults()
	if verbose {
		cfg.Log.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Verbose:    cfg.Log.Verbose,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}
