package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Inspect the run journal",
		Long: `Without arguments, list past provisioning runs from the journal.
With a run ID, show the step records of that run.`,
		Example: `  # List the last 20 runs
  rigup runs

  # Show the steps of one run
  rigup runs 5b1e2c8e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, err := loadManifest(ctx)
			if err != nil {
				return err
			}
			tel, err := newTelemetry(m, cmd.Root().Version)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, m, tel)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("run journal is disabled in the manifest")
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				records, err := store.ListStepRecords(ctx, run.ID)
				if err != nil {
					return err
				}

				if jsonOutput {
					return json.NewEncoder(out).Encode(map[string]interface{}{
						"run":   run,
						"steps": records,
					})
				}

				fmt.Fprintf(out, "Run %s: %s (manifest: %s, started %s)\n",
					run.ID, run.Status, displayPath(run.ManifestPath),
					run.StartedAt.Format(time.RFC3339))
				if run.Error != nil {
					kind := ""
					if run.ErrorKind != nil {
						kind = fmt.Sprintf(" [%s]", *run.ErrorKind)
					}
					fmt.Fprintf(out, "Error%s: %s\n", kind, *run.Error)
				}
				for _, rec := range records {
					status := string(rec.Status)
					if rec.ExitCode != 0 {
						status = fmt.Sprintf("%s (exit %d)", status, rec.ExitCode)
					}
					fmt.Fprintf(out, "  %-30s %-10s %s\n", rec.StepID, rec.Kind, status)
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(out).Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, run := range runs {
				completed := "-"
				if run.CompletedAt != nil {
					completed = run.CompletedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%s  %-10s started=%s completed=%s\n",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339), completed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}
