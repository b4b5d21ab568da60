package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/ghbackup/internal/backup"
)

var listCmd = &cobra.Command{
	Use:   "list [<owner>/<name>]",
	Short: "List committed snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		env, err := buildEnv(ctx)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			ref, err := backup.ParseRef(args[0])
			if err != nil {
				return err
			}
			return listSnapshots(env, ref)
		}

		refs, err := env.catalog.ListRepositories()
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			fmt.Println("no backups found")
			return nil
		}
		for _, ref := range refs {
			if err := listSnapshots(env, ref); err != nil {
				return err
			}
		}
		return nil
	},
}

func listSnapshots(e *env, ref backup.RepositoryRef) error {
	manifests, err := e.catalog.List(ref)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Printf("%s: no committed snapshots\n", ref)
		return nil
	}
	fmt.Printf("%s:\n", ref)
	for _, m := range manifests {
		status := "clean"
		if !m.Clean() {
			status = "partial"
		}
		fmt.Printf("  %s  content=%s  %s\n", m.Timestamp, m.ContentState, status)
	}
	return nil
}
