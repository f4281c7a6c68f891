package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest and its policies",
		Long: `Load the manifest, apply its overlay, run struct and CUE schema
validation, build the plan, and evaluate policies against it. Nothing on
the host is touched.`,
		Example: `  # Validate a manifest
  rigup validate --manifest rigup.yaml`,
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

			var warnings int
			if m.Policy.Enabled {
				result, err := evaluatePolicies(ctx, m, plan, tel)
				if err != nil {
					return err
				}
				warnings = len(result.Warnings)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"valid":    true,
					"manifest": displayPath(manifestPath),
					"steps":    len(plan.Steps),
					"runtimes": len(m.Toolchain.Runtimes),
					"warnings": warnings,
				})
			}

			fmt.Fprintf(out, "Manifest %s is valid: %d steps, %d runtimes",
				displayPath(manifestPath), len(plan.Steps), len(m.Toolchain.Runtimes))
			if warnings > 0 {
				fmt.Fprintf(out, ", %d policy warning(s)", warnings)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	return cmd
}
