package steps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rigup/rigup/pkg/engine"
	"github.com/rigup/rigup/pkg/telemetry"
)

// PackageManager describes a system package manager and the command shapes
// needed to drive it non-interactively.
type PackageManager struct {
	Name        string
	InstallArgs []string
	QueryName   string
	QueryArgs   []string
	Env         []string
}

var packageManagers = []PackageManager{
	{
		Name:        "apt-get",
		InstallArgs: []string{"install", "-y"},
		QueryName:   "dpkg-query",
		QueryArgs:   []string{"-W", "-f", "${Status}"},
		Env:         []string{"DEBIAN_FRONTEND=noninteractive"},
	},
	{
		Name:        "dnf",
		InstallArgs: []string{"install", "-y"},
		QueryName:   "rpm",
		QueryArgs:   []string{"-q"},
	},
	{
		Name:        "yum",
		InstallArgs: []string{"install", "-y"},
		QueryName:   "rpm",
		QueryArgs:   []string{"-q"},
	},
	{
		Name:        "zypper",
		InstallArgs: []string{"--non-interactive", "install"},
		QueryName:   "rpm",
		QueryArgs:   []string{"-q"},
	},
}

// DetectPackageManager finds the first supported package manager on PATH.
func DetectPackageManager() (*PackageManager, error) {
	for i := range packageManagers {
		if _, err := exec.LookPath(packageManagers[i].Name); err == nil {
			return &packageManagers[i], nil
		}
	}
	return nil, engine.NewPackageInstallError("no supported package manager found", 0, nil)
}

// Installer installs system packages through the detected package manager.
type Installer struct {
	runner Runner
	mgr    *PackageManager
	log    *telemetry.Logger
	// Sudo prefixes install commands with sudo when the process is not root.
	Sudo bool
}

// NewInstaller creates an installer bound to a package manager. mgr may be
// nil, in which case detection happens on first use.
func NewInstaller(runner Runner, mgr *PackageManager, log *telemetry.Logger) *Installer {
	return &Installer{runner: runner, mgr: mgr, log: log, Sudo: true}
}

func (i *Installer) manager() (*PackageManager, error) {
	if i.mgr != nil {
		return i.mgr, nil
	}
	mgr, err := DetectPackageManager()
	if err != nil {
		return nil, err
	}
	i.mgr = mgr
	return mgr, nil
}

// IsInstalled reports whether pkg is present according to the package
// manager's query tool.
func (i *Installer) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	mgr, err := i.manager()
	if err != nil {
		return false, err
	}
	res, err := i.runner.Run(ctx, Command{
		Name: mgr.QueryName,
		Args: append(append([]string{}, mgr.QueryArgs...), pkg),
	})
	if err != nil {
		return false, engine.NewIOError(fmt.Sprintf("query package %s", pkg), err)
	}
	if !res.Success() {
		return false, nil
	}
	// dpkg-query exits zero for removed-but-known packages; check the
	// status text it printed.
	if mgr.QueryName == "dpkg-query" {
		return strings.Contains(res.Stdout, "install ok installed"), nil
	}
	return true, nil
}

// AllInstalled reports whether every package in pkgs is already present.
func (i *Installer) AllInstalled(ctx context.Context, pkgs []string) (bool, error) {
	for _, pkg := range pkgs {
		ok, err := i.IsInstalled(ctx, pkg)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EnsurePackages installs the packages in pkgs that are missing, in one
// package manager invocation. Already-present packages are skipped.
func (i *Installer) EnsurePackages(ctx context.Context, pkgs []string) error {
	mgr, err := i.manager()
	if err != nil {
		return err
	}

	var missing []string
	for _, pkg := range pkgs {
		ok, err := i.IsInstalled(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, pkg)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if i.log != nil {
		i.log.Infof("installing packages: %s", strings.Join(missing, " "))
	}

	name := mgr.Name
	args := append(append([]string{}, mgr.InstallArgs...), missing...)
	if i.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}

	res, err := i.runner.Run(ctx, Command{Name: name, Args: args, Env: mgr.Env})
	if err != nil {
		return engine.NewIOError("run package install", err)
	}
	if !res.Success() {
		msg := fmt.Sprintf("%s failed to install %s: %s",
			mgr.Name, strings.Join(missing, " "), lastLine(res.Stderr))
		return engine.NewPackageInstallError(msg, res.ExitCode, nil)
	}
	return nil
}

// lastLine returns the final non-empty line of s, for compact error text.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
