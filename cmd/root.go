package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/ghbackup/internal/backup"
	"github.com/kebairia/ghbackup/internal/config"
	"github.com/kebairia/ghbackup/internal/github"
	"github.com/kebairia/ghbackup/internal/gitrepo"
	"github.com/kebairia/ghbackup/internal/logger"
	"github.com/kebairia/ghbackup/internal/vault"
)

// Exit codes of every subcommand.
const (
	ExitOK      = 0 // manifest committed, no failures
	ExitInvalid = 1 // invalid input or configuration
	ExitPartial = 2 // committed, but with partial failures
	ExitAborted = 3 // cancelled or catastrophic, nothing committed
)

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string
	// Verbose enables debug logging.
	Verbose bool

	rootCmd = &cobra.Command{
		Use:   "ghbackup",
		Short: "Backup and restore GitHub repositories",
		Long: `ghbackup mirrors GitHub repositories (full clone plus
issue/PR/release metadata) into timestamped local snapshots, lists
committed snapshots, and restores them into working checkouts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// The logger is built here, after flag parsing, so --verbose
		// takes effect.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logger.Init(Verbose)
			return err
		},
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		logger.Global().Error("command failed", "error", err.Error())
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "./configs/config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().
		BoolVarP(&Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(backupAllCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(restoreCmd)
}

// errPartial marks a run that committed but recorded failures. It is
// returned from RunE instead of exiting directly so deferred cleanup
// (log flush, signal stop) still runs.
var errPartial = errors.New("completed with partial failures")

// env bundles everything a subcommand needs, built once from config.
type env struct {
	cfg      config.Config
	provider backup.Provider
	resolver *backup.PathResolver
	catalog  *backup.Catalog
	coord    *backup.Coordinator
	restore  *backup.RestoreEngine
	log      logger.Logger
}

// buildEnv loads the config, resolves the GitHub token (config, env,
// or Vault), and wires all collaborators explicitly.
func buildEnv(ctx context.Context) (*env, error) {
	log := logger.Global()

	var cfg config.Config
	if err := cfg.Load(ConfigFile); err != nil {
		return nil, err
	}

	token := cfg.GitHub.Token
	if token == "" && cfg.Vault.Address != "" {
		vaultClient, err := vault.NewClient(ctx,
			vault.WithAddress(cfg.Vault.Address),
			vault.WithAppRole(cfg.Vault.ApproleName),
		)
		if err != nil {
			return nil, fmt.Errorf("vault client init: %w", err)
		}
		token, err = vaultClient.GitHubToken(ctx, cfg.Vault.SecretPath)
		if err != nil {
			return nil, fmt.Errorf("fetch GitHub token from vault: %w", err)
		}
	}

	provider, err := github.NewClient(ctx, token, github.WithPerPage(cfg.GitHub.PerPage))
	if err != nil {
		return nil, err
	}

	resolver, err := backup.NewPathResolver(cfg.Backup.Directory)
	if err != nil {
		return nil, err
	}

	workspace := gitrepo.New()
	catalog := backup.NewCatalog(resolver, log)
	coord := backup.NewCoordinator(provider, workspace, resolver, backup.Options{
		Concurrency:   cfg.Backup.Concurrency,
		PageCap:       cfg.Backup.PageCap,
		RetryAttempts: cfg.Backup.RetryAttempts,
		Compress:      cfg.Backup.Compress,
	}, log)
	restorer := backup.NewRestoreEngine(catalog, resolver, workspace, provider, log)

	return &env{
		cfg:      cfg,
		provider: provider,
		resolver: resolver,
		catalog:  catalog,
		coord:    coord,
		restore:  restorer,
		log:      log,
	}, nil
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// exitCode maps the error taxonomy onto the CLI exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case isAny(err, errPartial):
		return ExitPartial
	case isAny(err, backup.ErrAborted):
		return ExitAborted
	case isAny(err, backup.ErrInvalidIdentifier, backup.ErrTargetNotEmpty,
		backup.ErrNotFound, config.ErrLoadConfig, config.ErrValidateConfig):
		return ExitInvalid
	default:
		return ExitAborted
	}
}
