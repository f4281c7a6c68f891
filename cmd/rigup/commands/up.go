package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/stores"
	"github.com/rigup/rigup/pkg/telemetry"
)

func newUpCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Provision the machine from the manifest",
		Long: `Build the provisioning plan, gate it through policy, show it, and
execute it after confirmation.

This command:
  - Loads and validates the manifest
  - Builds the dependency-ordered plan
  - Evaluates OPA policies over the plan
  - Prompts for a single confirmation (unless --yes)
  - Executes steps strictly in order, skipping already-satisfied ones
  - Aborts on the first failure and journals the run

Declining the prompt exits non-zero without touching the host. A failed run
can simply be re-run: finished steps are detected and skipped.`,
		Example: `  # Provision with the built-in manifest
  rigup up

  # Provision from a manifest, skipping the prompt
  rigup up --manifest rigup.yaml --yes`,
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
			defer tel.Tracer.Shutdown(ctx)
			if err := tel.Metrics.Serve(); err != nil {
				tel.Logger.WithError(err).Warn("metrics endpoint unavailable")
			}

			plan, err := buildPlan(m, tel)
			if err != nil {
				return err
			}

			if m.Policy.Enabled {
				if _, err := evaluatePolicies(ctx, m, plan, tel); err != nil {
					return err
				}
			}

			// The journal is opened by the sequencer, after the operator
			// confirms; declining the prompt never creates the journal file.
			var journal stores.Store
			openJournal := func(ctx context.Context) (stores.Store, error) {
				store, err := openStore(ctx, m, tel)
				if err != nil || store == nil {
					return nil, err
				}
				journal = store
				// Journal progress events alongside step records.
				tel.Events.Subscribe(func(e telemetry.Event) {
					rec := &stores.Event{
						Level:     stores.EventLevelInfo,
						Message:   e.Message,
						Timestamp: e.Timestamp,
					}
					if e.Type == telemetry.EventTypeStepFailed || e.Type == telemetry.EventTypeRunAborted {
						rec.Level = stores.EventLevelError
					}
					if e.RunID != "" {
						rec.RunID = &e.RunID
					}
					if e.StepID != "" {
						rec.StepID = &e.StepID
					}
					if err := store.AppendEvent(ctx, rec); err != nil {
						tel.Logger.WithError(err).Warn("failed to journal event")
					}
				})
				return store, nil
			}
			defer func() {
				if journal != nil {
					journal.Close()
				}
			}()

			// Progress lines for the operator, fed by sequencer events.
			out := cmd.OutOrStdout()
			tel.Events.Subscribe(func(e telemetry.Event) {
				switch e.Type {
				case telemetry.EventTypeStepStarted:
					fmt.Fprintf(out, "--> %s\n", e.Message)
				case telemetry.EventTypeStepSkipped:
					fmt.Fprintf(out, "    %s (skipped)\n", e.Message)
				case telemetry.EventTypeStepCompleted:
					fmt.Fprintf(out, "    %s\n", e.Message)
				case telemetry.EventTypeStepFailed:
					fmt.Fprintf(out, "    FAILED: %s\n", e.Message)
				}
			})

			seq := engine.NewSequencer(tel, openJournal)
			report, err := seq.Execute(ctx, plan, confirmFunc(cmd.InOrStdin(), cmd.OutOrStdout(), autoApprove))
			if err != nil {
				if engine.IsUserDeclined(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted: provisioning declined, nothing was changed.")
					return err
				}
				if report != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Aborted at step %s (%s): %v\n",
						report.FailedStep, engine.KindOf(err), err)
					fmt.Fprintln(cmd.OutOrStdout(), "Fix the cause and re-run; completed steps will be skipped.")
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Provisioning complete: %s\n", report.Summary())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// confirmFunc shows the ordered plan and asks for a single y/n/q answer.
// One unrecognized answer re-prompts; a second declines.
func confirmFunc(in io.Reader, out io.Writer, autoApprove bool) engine.ConfirmFunc {
	return func(plan *engine.Plan) (bool, error) {
		fmt.Fprintf(out, "Plan: %d steps\n", len(plan.Steps))
		for i, step := range plan.Steps {
			fmt.Fprintf(out, "  %2d. %-40s [%s]\n", i+1, step.Name, step.Kind)
		}
		if autoApprove {
			return true, nil
		}

		reader := bufio.NewReader(in)
		for attempt := 0; attempt < 2; attempt++ {
			fmt.Fprint(out, "Proceed with provisioning? [y/n/q]: ")
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return false, nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			case "n", "no", "q", "quit":
				return false, nil
			}
			fmt.Fprintln(out, "Please answer y, n or q.")
		}
		return false, nil
	}
}
