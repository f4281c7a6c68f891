package steps

import (
	"context"
	"fmt"

	"github.com/rigup/rigup/pkg/config"
	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/telemetry"
)

// Builder turns a validated manifest into an executable plan. Every step
// carries a live check, so a plan built from the same manifest can be
// re-executed after an abort and only does the remaining work.
type Builder struct {
	runner Runner
	log    *telemetry.Logger
}

// NewBuilder creates a plan builder. runner executes every subprocess the
// resulting steps spawn.
func NewBuilder(runner Runner, log *telemetry.Logger) *Builder {
	return &Builder{runner: runner, log: log}
}

// Build constructs the provisioning plan for the manifest.
//
// The dependency shape is fixed: system packages first, then release
// resolution, then the version manager bootstrap; profiles and plugins hang
// off the bootstrap; each runtime requires its plugin; erlang precedes
// elixir because elixir builds on the erlang VM; nodejs is ordered after
// elixir only to keep run output deterministic; hex requires elixir, the
// phoenix generator requires hex, and the editor goes last.
func (b *Builder) Build(m *config.Manifest, manifestPath string) (*engine.Plan, error) {
	installDir, err := config.ExpandHome(m.Toolchain.VersionManager.InstallDir)
	if err != nil {
		return nil, engine.NewValidationError("expand install dir", err)
	}

	installer := NewInstaller(b.runner, nil, b.log)
	mgr := NewManager(b.runner, installDir, b.log)
	mix := NewMix(mgr, b.log)
	resolver := NewResolver(
		m.Toolchain.VersionManager.DocsURL,
		m.Toolchain.VersionManager.GitRepo,
		m.Toolchain.VersionManager.ResolveTimeout.Std(),
		b.log,
	)

	var plan []*engine.Step

	// System packages.
	pkgs := m.Toolchain.Packages
	plan = append(plan, &engine.Step{
		ID:          "packages",
		Name:        "Install system packages",
		Description: fmt.Sprintf("Install %d build dependencies via the system package manager", len(pkgs)),
		Kind:        engine.StepKindPackages,
		Required:    true,
		Check: func(ctx context.Context) (bool, error) {
			return installer.AllInstalled(ctx, pkgs)
		},
		Run: func(ctx context.Context) error {
			return installer.EnsurePackages(ctx, pkgs)
		},
	})

	// Release resolution. The resolution is handed to the bootstrap step
	// through the shared pointer; the require edge guarantees it is set
	// before the bootstrap runs.
	var res *Resolution
	plan = append(plan, &engine.Step{
		ID:           "resolve-asdf",
		Name:         "Resolve asdf release",
		Description:  "Extract the pinned release tag from the asdf installation docs",
		Kind:         engine.StepKindResolve,
		Required:     true,
		Dependencies: []engine.Dependency{engine.Require("packages")},
		Check: func(ctx context.Context) (bool, error) {
			// Nothing to resolve when asdf is already on disk.
			return mgr.IsBootstrapped(ctx)
		},
		Run: func(ctx context.Context) error {
			r, err := resolver.Resolve(ctx, installDir)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
	})

	plan = append(plan, &engine.Step{
		ID:           "asdf-bootstrap",
		Name:         "Bootstrap asdf",
		Description:  fmt.Sprintf("Clone asdf into %s at the resolved release", installDir),
		Kind:         engine.StepKindBootstrap,
		Required:     true,
		Dependencies: []engine.Dependency{engine.Require("resolve-asdf")},
		Check:        mgr.IsBootstrapped,
		Run: func(ctx context.Context) error {
			if res == nil {
				return engine.NewValidationError("no resolved release available", nil)
			}
			return mgr.Bootstrap(ctx, res)
		},
	})

	// Shell profiles.
	for _, pf := range m.Profiles {
		path, err := config.ExpandHome(pf.Path)
		if err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("expand profile path %s", pf.Path), err)
		}
		blocks := make([]ProfileBlock, len(pf.Blocks))
		for i, spec := range pf.Blocks {
			blocks[i] = ProfileBlock{Marker: spec.Marker, Lines: spec.Lines}
		}
		plan = append(plan, &engine.Step{
			ID:           "profile:" + pf.Path,
			Name:         "Update " + pf.Path,
			Description:  fmt.Sprintf("Append %d marked blocks to %s", len(blocks), pf.Path),
			Kind:         engine.StepKindProfile,
			Required:     true,
			Dependencies: []engine.Dependency{engine.Require("asdf-bootstrap")},
			Check: func(ctx context.Context) (bool, error) {
				for _, block := range blocks {
					ok, err := HasBlock(path, block)
					if err != nil || !ok {
						return false, err
					}
				}
				return true, nil
			},
			Run: func(ctx context.Context) error {
				_, err := AppendBlocks(path, blocks)
				return err
			},
		})
	}

	// Plugins and pinned runtimes, in manifest order. The ID map is filled
	// up front so cross-runtime edges hold regardless of declaration order.
	runtimeIDs := make(map[string]string, len(m.Toolchain.Runtimes))
	for _, rt := range m.Toolchain.Runtimes {
		runtimeIDs[rt.Name] = "runtime:" + rt.Name
	}
	for _, rt := range m.Toolchain.Runtimes {
		pluginID := "plugin:" + rt.Name
		runtimeID := runtimeIDs[rt.Name]

		plan = append(plan, &engine.Step{
			ID:           pluginID,
			Name:         "Register " + rt.Name + " plugin",
			Description:  fmt.Sprintf("Register the asdf plugin for %s", rt.Name),
			Kind:         engine.StepKindPlugin,
			Required:     true,
			Dependencies: []engine.Dependency{engine.Require("asdf-bootstrap")},
			Check: func(ctx context.Context) (bool, error) {
				return mgr.HasPlugin(ctx, rt.Name)
			},
			Run: func(ctx context.Context) error {
				return mgr.AddPlugin(ctx, rt.Name, rt.PluginURL)
			},
		})

		deps := []engine.Dependency{engine.Require(pluginID)}
		switch rt.Name {
		case "elixir":
			if erlang, ok := runtimeIDs["erlang"]; ok {
				deps = append(deps, engine.Require(erlang))
			}
		case "nodejs":
			if elixir, ok := runtimeIDs["elixir"]; ok {
				deps = append(deps, engine.After(elixir))
			}
		}

		plan = append(plan, &engine.Step{
			ID:           runtimeID,
			Name:         fmt.Sprintf("Install %s %s", rt.Name, rt.Version),
			Description:  fmt.Sprintf("Install %s %s and pin it globally", rt.Name, rt.Version),
			Kind:         engine.StepKindRuntime,
			Required:     true,
			Dependencies: deps,
			Check: func(ctx context.Context) (bool, error) {
				ok, err := mgr.IsRuntimeInstalled(ctx, rt.Name, rt.Version)
				if err != nil || !ok {
					return false, err
				}
				current, err := mgr.GlobalVersion(ctx, rt.Name)
				if err != nil {
					return false, err
				}
				return current == rt.Version, nil
			},
			Run: func(ctx context.Context) error {
				return mgr.InstallAndPin(ctx, rt.Name, rt.Version)
			},
		})
	}

	lastToolID := ""

	if m.Toolchain.Mix.HexBootstrap {
		elixir, ok := runtimeIDs["elixir"]
		if !ok {
			return nil, engine.NewValidationError("hex bootstrap requires an elixir runtime in the manifest", nil)
		}
		plan = append(plan, &engine.Step{
			ID:           "hex-bootstrap",
			Name:         "Bootstrap hex",
			Description:  "Install the hex package manager for the pinned elixir",
			Kind:         engine.StepKindTool,
			Required:     true,
			Dependencies: []engine.Dependency{engine.Require(elixir)},
			Check:        mix.HasHex,
			Run:          mix.BootstrapHex,
		})
		lastToolID = "hex-bootstrap"
	}

	if v := m.Toolchain.Mix.Phoenix.Version; v != "" {
		if lastToolID == "" {
			return nil, engine.NewValidationError("phoenix generator requires hex bootstrap", nil)
		}
		plan = append(plan, &engine.Step{
			ID:           "phoenix-archive",
			Name:         "Install phoenix generator " + v,
			Description:  "Install the phx_new project generator archive from hex",
			Kind:         engine.StepKindTool,
			Required:     true,
			Dependencies: []engine.Dependency{engine.Require("hex-bootstrap")},
			Check: func(ctx context.Context) (bool, error) {
				return mix.HasPhoenixArchive(ctx, v)
			},
			Run: func(ctx context.Context) error {
				return mix.InstallPhoenixArchive(ctx, v)
			},
		})
		lastToolID = "phoenix-archive"
	}

	if editor := m.Toolchain.Editor; editor != "" {
		deps := []engine.Dependency{engine.Require("packages")}
		if lastToolID != "" {
			deps = append(deps, engine.After(lastToolID))
		}
		plan = append(plan, &engine.Step{
			ID:           "editor",
			Name:         "Install " + editor,
			Description:  "Install the editor via the system package manager",
			Kind:         engine.StepKindTool,
			Required:     false,
			Dependencies: deps,
			Check: func(ctx context.Context) (bool, error) {
				return installer.IsInstalled(ctx, editor)
			},
			Run: func(ctx context.Context) error {
				if err := installer.EnsurePackages(ctx, []string{editor}); err != nil {
					if se, ok := err.(*engine.StepError); ok && se.Kind == engine.ErrKindPackageInstall {
						return engine.NewExternalToolError(editor, se.ExitCode, se)
					}
					return err
				}
				return nil
			},
		})
	}

	return &engine.Plan{Steps: plan, ManifestPath: manifestPath}, nil
}
