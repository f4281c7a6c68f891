package policy

import (
	"time"

	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/engine"
)

// BuildPlanInput flattens a plan and its manifest into the document
// policies evaluate.
func BuildPlanInput(plan *engine.Plan, m *config.Manifest) *PlanInput {
	input := &PlanInput{
		Context: &Context{
			ManifestPath: plan.ManifestPath,
			Timestamp:    time.Now(),
		},
	}

	for _, step := range plan.Steps {
		deps := make([]string, len(step.Dependencies))
		for i, dep := range step.Dependencies {
			deps[i] = dep.TargetID
		}
		input.Steps = append(input.Steps, StepInput{
			ID:           step.ID,
			Name:         step.Name,
			Kind:         string(step.Kind),
			Required:     step.Required,
			Dependencies: deps,
		})
	}

	for _, rt := range m.Toolchain.Runtimes {
		input.Runtimes = append(input.Runtimes, RuntimeInput{
			Name:      rt.Name,
			Version:   rt.Version,
			PluginURL: rt.PluginURL,
		})
	}

	for _, pf := range m.Profiles {
		markers := make([]string, len(pf.Blocks))
		var lines []string
		for i, block := range pf.Blocks {
			markers[i] = block.Marker
			lines = append(lines, block.Lines...)
		}
		input.Profiles = append(input.Profiles, ProfileInput{
			Path:    pf.Path,
			Markers: markers,
			Lines:   lines,
		})
	}

	input.VersionManager = &VersionManagerInput{
		DocsURL: m.Toolchain.VersionManager.DocsURL,
		GitRepo: m.Toolchain.VersionManager.GitRepo,
	}

	return input
}
