package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/telemetry"
)

// Mix drives the elixir build tool through the pinned runtime managed by
// asdf, so the host's PATH never matters.
type Mix struct {
	mgr *Manager
	log *telemetry.Logger
}

// NewMix creates a mix wrapper on top of an asdf manager.
func NewMix(mgr *Manager, log *telemetry.Logger) *Mix {
	return &Mix{mgr: mgr, log: log}
}

// HasHex reports whether the hex package manager is installed for the
// pinned elixir.
func (m *Mix) HasHex(ctx context.Context) (bool, error) {
	res, err := m.mgr.Exec(ctx, "mix", "hex.info")
	if err != nil {
		return false, engine.NewIOError("query hex", err)
	}
	return res.Success(), nil
}

// BootstrapHex installs hex non-interactively. Reinstalling over an existing
// hex is harmless, but callers normally gate on HasHex first.
func (m *Mix) BootstrapHex(ctx context.Context) error {
	if m.log != nil {
		m.log.Info("bootstrapping hex")
	}
	res, err := m.mgr.Exec(ctx, "mix", "local.hex", "--force")
	if err != nil {
		return engine.NewIOError("run mix local.hex", err)
	}
	if !res.Success() {
		return engine.NewExternalToolError("mix", res.ExitCode,
			fmt.Errorf("local.hex: %s", lastLine(res.Stderr)))
	}
	return nil
}

// HasPhoenixArchive reports whether the phx_new generator archive at the
// exact version is installed.
func (m *Mix) HasPhoenixArchive(ctx context.Context, version string) (bool, error) {
	res, err := m.mgr.Exec(ctx, "mix", "archive")
	if err != nil {
		return false, engine.NewIOError("list mix archives", err)
	}
	if !res.Success() {
		return false, nil
	}
	return strings.Contains(res.Stdout, "phx_new-"+version), nil
}

// InstallPhoenixArchive installs the phx_new generator archive at the exact
// version from hex.
func (m *Mix) InstallPhoenixArchive(ctx context.Context, version string) error {
	if m.log != nil {
		m.log.Infof("installing phoenix generator %s", version)
	}
	res, err := m.mgr.Exec(ctx, "mix", "archive.install", "hex", "phx_new", version, "--force")
	if err != nil {
		return engine.NewIOError("run mix archive.install", err)
	}
	if !res.Success() {
		return engine.NewExternalToolError("mix", res.ExitCode,
			fmt.Errorf("archive.install phx_new %s: %s", version, lastLine(res.Stderr)))
	}
	return nil
}
