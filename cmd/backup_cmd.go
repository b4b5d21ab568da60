package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kebairia/ghbackup/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup <owner>/<name>",
	Short: "Snapshot one repository (mirror clone + metadata)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := backup.ParseRef(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		env, err := buildEnv(ctx)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, env.cfg.Backup.Timeout)
		defer cancel()

		manifest, err := env.coord.Backup(ctx, ref)
		if err != nil {
			return err
		}

		printManifest(manifest)
		if !manifest.Clean() {
			return fmt.Errorf("%w: snapshot %s@%s", errPartial, manifest.Ref, manifest.Timestamp)
		}
		return nil
	},
}

var backupAllCmd = &cobra.Command{
	Use:   "backup-all",
	Short: "Snapshot every repository of a user or organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		env, err := buildEnv(ctx)
		if err != nil {
			return err
		}

		owner, _ := cmd.Flags().GetString("user")
		org, _ := cmd.Flags().GetString("org")
		isOrg := org != ""
		if isOrg {
			owner = org
		}
		if owner == "" {
			owner = env.cfg.GitHub.Username
		}
		if owner == "" {
			return fmt.Errorf("%w: no owner given and github.username not configured", backup.ErrInvalidIdentifier)
		}

		ctx, cancel := context.WithTimeout(ctx, env.cfg.Backup.Timeout)
		defer cancel()

		results, err := env.coord.BackupAll(ctx, owner, isOrg)
		if err != nil {
			return err
		}

		for _, result := range results {
			if result.Err != nil {
				fmt.Printf("failed    %s: %v\n", result.Ref, result.Err)
				continue
			}
			status := "committed"
			if !result.Manifest.Clean() {
				status = "partial"
			}
			fmt.Printf("%-9s %s@%s\n", status, result.Ref, result.Manifest.Timestamp)
		}

		switch {
		case backup.BatchAborted(results):
			return fmt.Errorf("%w: one or more repositories did not commit", backup.ErrAborted)
		case !backup.BatchClean(results):
			return fmt.Errorf("%w: one or more repositories recorded failures", errPartial)
		}
		return nil
	},
}

func init() {
	backupAllCmd.Flags().String("user", "", "GitHub user to back up (defaults to configured username)")
	backupAllCmd.Flags().String("org", "", "GitHub organization to back up")
	backupAllCmd.MarkFlagsMutuallyExclusive("user", "org")
}

// signalContext returns a context cancelled by SIGINT/SIGTERM, so an
// operator interrupt aborts pipelines cooperatively instead of killing
// a write mid-flight.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printManifest(m *backup.SnapshotManifest) {
	fmt.Printf("snapshot %s@%s\n", m.Ref, m.Timestamp)
	fmt.Printf("  content: %s\n", m.ContentState)
	for _, class := range backup.EntityClasses {
		line := fmt.Sprintf("  %s: %s", class, m.MetadataStates[class])
		if count, ok := m.EntityCounts[class]; ok && m.MetadataStates[class] == backup.StateComplete {
			line += fmt.Sprintf(" (%d)", count)
		}
		if m.Truncated[class] {
			line += " [truncated]"
		}
		fmt.Println(line)
	}
}
