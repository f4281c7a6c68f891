package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/telemetry"
)

// Manager drives a local asdf installation: bootstrap from git, plugin
// registration, and pinned runtime installs. Every operation is written to
// be re-runnable; callers probe state with the Has/Is methods before acting.
type Manager struct {
	runner     Runner
	installDir string
	log        *telemetry.Logger
}

// NewManager creates a manager rooted at installDir (usually ~/.asdf).
func NewManager(runner Runner, installDir string, log *telemetry.Logger) *Manager {
	return &Manager{runner: runner, installDir: installDir, log: log}
}

// InstallDir returns the asdf root directory.
func (m *Manager) InstallDir() string {
	return m.installDir
}

func (m *Manager) binary() string {
	return filepath.Join(m.installDir, "bin", "asdf")
}

func (m *Manager) env() []string {
	return []string{"ASDF_DIR=" + m.installDir}
}

// asdf runs the asdf binary with the manager's environment.
func (m *Manager) asdf(ctx context.Context, args ...string) (Result, error) {
	return m.runner.Run(ctx, Command{Name: m.binary(), Args: args, Env: m.env()})
}

// IsBootstrapped reports whether the asdf binary exists under the install
// directory.
func (m *Manager) IsBootstrapped(ctx context.Context) (bool, error) {
	if _, err := os.Stat(m.binary()); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, engine.NewIOError(fmt.Sprintf("stat %s", m.binary()), err)
	}
	return true, nil
}

// Bootstrap clones the resolved asdf release into the install directory.
// An existing install directory is left alone.
func (m *Manager) Bootstrap(ctx context.Context, res *Resolution) error {
	ok, err := m.IsBootstrapped(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if m.log != nil {
		m.log.Infof("cloning asdf %s into %s", res.Version, m.installDir)
	}

	result, err := m.runner.Run(ctx, res.CloneCommand())
	if err != nil {
		return engine.NewIOError("run git clone", err)
	}
	if !result.Success() {
		return engine.NewExternalToolError("git", result.ExitCode,
			fmt.Errorf("clone %s at %s: %s", res.GitRepo, res.Version, lastLine(result.Stderr)))
	}
	return nil
}

// HasPlugin reports whether the named plugin is registered.
func (m *Manager) HasPlugin(ctx context.Context, name string) (bool, error) {
	res, err := m.asdf(ctx, "plugin", "list")
	if err != nil {
		return false, engine.NewIOError("list asdf plugins", err)
	}
	if !res.Success() {
		// asdf exits non-zero when no plugins exist yet.
		return false, nil
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}

// AddPlugin registers a plugin, optionally from an explicit source URL.
// Registering an already-present plugin is a no-op.
func (m *Manager) AddPlugin(ctx context.Context, name, sourceURL string) error {
	ok, err := m.HasPlugin(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	args := []string{"plugin", "add", name}
	if sourceURL != "" {
		args = append(args, sourceURL)
	}
	res, err := m.asdf(ctx, args...)
	if err != nil {
		return engine.NewIOError(fmt.Sprintf("add plugin %s", name), err)
	}
	if !res.Success() {
		return engine.NewPluginRegistrationError(name,
			fmt.Errorf("asdf exited %d: %s", res.ExitCode, lastLine(res.Stderr)))
	}
	return nil
}

// IsRuntimeInstalled reports whether the exact runtime version is installed.
func (m *Manager) IsRuntimeInstalled(ctx context.Context, name, version string) (bool, error) {
	res, err := m.asdf(ctx, "list", name)
	if err != nil {
		return false, engine.NewIOError(fmt.Sprintf("list %s versions", name), err)
	}
	if !res.Success() {
		// No versions installed for this plugin yet.
		return false, nil
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		// Installed versions are listed indented; the active one carries
		// a leading asterisk.
		if strings.TrimLeft(strings.TrimSpace(line), "*") == version {
			return true, nil
		}
	}
	return false, nil
}

// InstallRuntime installs the exact runtime version. Installing a version
// that is already present is a no-op.
func (m *Manager) InstallRuntime(ctx context.Context, name, version string) error {
	ok, err := m.IsRuntimeInstalled(ctx, name, version)
	if err != nil {
		return err
	}
	if !ok {
		if m.log != nil {
			m.log.Infof("installing %s %s", name, version)
		}
		res, err := m.asdf(ctx, "install", name, version)
		if err != nil {
			return engine.NewIOError(fmt.Sprintf("install %s %s", name, version), err)
		}
		if !res.Success() {
			return engine.NewRuntimeInstallError(name, version, res.ExitCode,
				fmt.Errorf("%s", lastLine(res.Stderr)))
		}
	}
	return nil
}

// GlobalVersion returns the currently pinned global version for the runtime,
// or empty when none is set.
func (m *Manager) GlobalVersion(ctx context.Context, name string) (string, error) {
	res, err := m.asdf(ctx, "current", name)
	if err != nil {
		return "", engine.NewIOError(fmt.Sprintf("query current %s", name), err)
	}
	if !res.Success() {
		return "", nil
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) < 2 {
		return "", nil
	}
	return fields[1], nil
}

// PinGlobal sets the global version for the runtime.
func (m *Manager) PinGlobal(ctx context.Context, name, version string) error {
	res, err := m.asdf(ctx, "global", name, version)
	if err != nil {
		return engine.NewIOError(fmt.Sprintf("pin %s %s", name, version), err)
	}
	if !res.Success() {
		return engine.NewRuntimeInstallError(name, version, res.ExitCode,
			fmt.Errorf("pin global version: %s", lastLine(res.Stderr)))
	}
	return nil
}

// InstallAndPin installs the exact version and pins it globally. Both halves
// check current state first, so repeating the call changes nothing.
func (m *Manager) InstallAndPin(ctx context.Context, name, version string) error {
	if err := m.InstallRuntime(ctx, name, version); err != nil {
		return err
	}
	current, err := m.GlobalVersion(ctx, name)
	if err != nil {
		return err
	}
	if current == version {
		return nil
	}
	return m.PinGlobal(ctx, name, version)
}

// Exec runs a command through the pinned toolchain, e.g. mix via the elixir
// runtime asdf manages.
func (m *Manager) Exec(ctx context.Context, args ...string) (Result, error) {
	return m.asdf(ctx, append([]string{"exec"}, args...)...)
}
