package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/policy"
	"github.com/rigup/rigup/pkg/steps"
	"github.com/rigup/rigup/pkg/stores"
	"github.com/rigup/rigup/pkg/telemetry"
)

// loadManifest reads and validates the manifest named by the global flag.
func loadManifest(ctx context.Context) (*config.Manifest, error) {
	return config.NewLoader().Load(ctx, manifestPath)
}

// newTelemetry builds the telemetry stack from manifest settings, with the
// --verbose flag forcing debug logging.
func newTelemetry(m *config.Manifest, version string) (*telemetry.Telemetry, error) {
	cfg := m.Telemetry.ToTelemetryConfig(version)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	return telemetry.NewTelemetry(cfg)
}

// buildPlan constructs the provisioning plan for the manifest.
func buildPlan(m *config.Manifest, tel *telemetry.Telemetry) (*engine.Plan, error) {
	runner := steps.NewExecRunner(tel.Logger.NewComponentLogger("exec"))
	return steps.NewBuilder(runner, tel.Logger).Build(m, manifestPath)
}

// openStore opens the run journal declared in the manifest. A nil store is
// returned when the journal is disabled.
func openStore(ctx context.Context, m *config.Manifest, tel *telemetry.Telemetry) (stores.Store, error) {
	if m.Store.Path == "" {
		return nil, nil
	}
	path, err := config.ExpandHome(m.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	tel.Logger.WithField("path", path).Debug("run journal opened")
	return store, nil
}

// evaluatePolicies runs the policy gate over the plan. In enforcing mode a
// deny blocks the run; in advisory mode violations downgrade to warnings.
func evaluatePolicies(ctx context.Context, m *config.Manifest, plan *engine.Plan, tel *telemetry.Telemetry) (*policy.Result, error) {
	eng, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if len(m.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, m.Policy.Paths); err != nil {
			return nil, err
		}
		if m.Policy.Watch {
			loader := policy.NewLoader(tel.Logger.Zerolog())
			if err := loader.Watch(ctx, m.Policy.Paths, func(ps []policy.Policy) error {
				return eng.StorePolicies(ctx, ps)
			}); err != nil {
				tel.Logger.WithError(err).Warn("policy watch unavailable")
			}
		}
	}

	result, err := eng.Evaluate(ctx, policy.BuildPlanInput(plan, m))
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		tel.Logger.WithField("policy", w.Policy).Warnf("policy warning: %s", w.Message)
	}

	if !result.Allowed {
		if m.Policy.Mode == "advisory" {
			for _, v := range result.Violations {
				tel.Logger.WithField("policy", v.Policy).Warnf("policy violation (advisory): %s", v.Message)
			}
			return result, nil
		}
		for _, v := range result.Violations {
			tel.Logger.WithField("policy", v.Policy).Errorf("policy violation: %s", v.Message)
		}
		return result, fmt.Errorf("plan rejected by policy: %d violation(s)", len(result.Violations))
	}
	return result, nil
}
