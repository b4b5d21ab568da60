package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/ghbackup/internal/backup"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <owner>/<name>@<timestamp> <target>",
	Short: "Restore a snapshot into a working checkout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := backup.ParseSnapshotID(args[0])
		if err != nil {
			return err
		}
		target := args[1]

		ctx, stop := signalContext()
		defer stop()

		env, err := buildEnv(ctx)
		if err != nil {
			return err
		}

		overwrite, _ := cmd.Flags().GetBool("overwrite")
		replay, _ := cmd.Flags().GetBool("replay-metadata")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		report, err := env.restore.Restore(ctx, id, target, backup.RestoreOptions{
			Overwrite:      overwrite,
			ReplayMetadata: replay,
			DryRun:         dryRun,
		})
		if err != nil {
			return err
		}

		printReport(report)
		if report.Failed() {
			return fmt.Errorf("%w: one or more restore steps failed", errPartial)
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().Bool("overwrite", false, "allow restoring into a non-empty target")
	restoreCmd.Flags().Bool("replay-metadata", false, "recreate issues, labels and releases on the remote")
	restoreCmd.Flags().Bool("dry-run", false, "report what would be replayed without touching the remote")
}

func printReport(r *backup.RestoreReport) {
	fmt.Printf("restore %s -> %s\n", r.Snapshot, r.Target)
	for _, step := range r.Steps {
		line := fmt.Sprintf("  %s: %s", step.Name, step.State)
		if step.Detail != "" {
			line += " (" + step.Detail + ")"
		}
		if step.Error != "" {
			line += " error: " + step.Error
		}
		fmt.Println(line)
	}
	for _, skip := range r.Skipped {
		fmt.Printf("  skipped %s: %s\n", skip.Entity, skip.Reason)
	}
}
