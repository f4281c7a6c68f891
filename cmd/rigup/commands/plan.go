package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rigup/rigup/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the provisioning plan without executing it",
		Long: `Build the dependency-ordered plan from the manifest and print it.

With --check, each step's live state probe also runs, showing which steps a
subsequent 'rigup up' would actually execute and which are already
satisfied. Probes are read-only; nothing on the host changes.`,
		Example: `  # Show the ordered plan
  rigup plan --manifest rigup.yaml

  # Show the plan with live state
  rigup plan --manifest rigup.yaml --check`,
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

			plan, err := buildPlan(m, tel)
			if err != nil {
				return err
			}
			ordered, err := engine.NewGraphBuilder().Order(plan.Steps)
			if err != nil {
				return err
			}

			if m.Policy.Enabled {
				if _, err := evaluatePolicies(ctx, m, plan, tel); err != nil {
					return err
				}
			}

			type planRow struct {
				ID        string   `json:"id"`
				Name      string   `json:"name"`
				Kind      string   `json:"kind"`
				DependsOn []string `json:"depends_on,omitempty"`
				Satisfied *bool    `json:"satisfied,omitempty"`
			}

			rows := make([]planRow, 0, len(ordered))
			for _, step := range ordered {
				row := planRow{ID: step.ID, Name: step.Name, Kind: string(step.Kind)}
				for _, dep := range step.Dependencies {
					row.DependsOn = append(row.DependsOn, dep.TargetID)
				}
				if check {
					satisfied, err := probeStep(ctx, step)
					if err != nil {
						tel.Logger.WithStepID(step.ID).WithError(err).Warn("state probe failed")
					} else {
						row.Satisfied = &satisfied
					}
				}
				rows = append(rows, row)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			fmt.Fprintf(out, "Plan: %d steps (manifest: %s)\n", len(rows), displayPath(plan.ManifestPath))
			for i, row := range rows {
				state := ""
				if row.Satisfied != nil {
					if *row.Satisfied {
						state = " (already satisfied)"
					} else {
						state = " (pending)"
					}
				}
				fmt.Fprintf(out, "  %2d. %-40s [%s]%s\n", i+1, row.Name, row.Kind, state)
				if len(row.DependsOn) > 0 {
					fmt.Fprintf(out, "       after: %s\n", strings.Join(row.DependsOn, ", "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "probe live state for each step")

	return cmd
}

func probeStep(ctx context.Context, step *engine.Step) (bool, error) {
	if step.Check == nil {
		return false, nil
	}
	return step.Check(ctx)
}

func displayPath(path string) string {
	if path == "" {
		return "<built-in>"
	}
	return path
}
