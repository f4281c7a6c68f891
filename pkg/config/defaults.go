package config

import "time"

// Reference toolchain versions. These track the versions the manifest ships
// with; manifests override them freely.
const (
	DefaultErlangVersion  = "24.2.1"
	DefaultElixirVersion  = "1.13.3"
	DefaultNodejsVersion  = "17.5.0"
	DefaultPhoenixVersion = "1.6.6"

	DefaultAsdfDocsURL    = "https://asdf-vm.com/guide/getting-started.html"
	DefaultAsdfGitRepo    = "https://github.com/asdf-vm/asdf.git"
	DefaultAsdfInstallDir = "~/.asdf"

	DefaultResolveTimeout = 30 * time.Second
)

// DefaultManifest returns the built-in manifest: an elixir/phoenix
// development host with erlang, elixir and nodejs pinned, hex and the
// phoenix generator bootstrapped, and asdf wired into bash profiles.
func DefaultManifest() *Manifest {
	asdfBlock := ProfileBlockSpec{
		Marker: "rigup: asdf version manager",
		Lines: []string{
			`. "$HOME/.asdf/asdf.sh"`,
			`. "$HOME/.asdf/completions/asdf.bash"`,
		},
	}

	return &Manifest{
		Toolchain: Toolchain{
			VersionManager: VersionManager{
				DocsURL:        DefaultAsdfDocsURL,
				GitRepo:        DefaultAsdfGitRepo,
				InstallDir:     DefaultAsdfInstallDir,
				ResolveTimeout: Duration(DefaultResolveTimeout),
			},
			Runtimes: []RuntimeSpec{
				{Name: "erlang", Version: DefaultErlangVersion},
				{Name: "elixir", Version: DefaultElixirVersion},
				{Name: "nodejs", Version: DefaultNodejsVersion},
			},
			Packages: []string{
				"git", "curl", "build-essential", "autoconf",
				"m4", "libncurses5-dev", "libssl-dev", "unzip",
			},
			Editor: "vim",
			Mix: MixSettings{
				HexBootstrap: true,
				Phoenix:      PhoenixSettings{Version: DefaultPhoenixVersion},
			},
		},
		Profiles: []ProfileFile{
			{Path: "~/.bashrc", Blocks: []ProfileBlockSpec{asdfBlock}},
			{Path: "~/.profile", Blocks: []ProfileBlockSpec{asdfBlock}},
		},
		Policy: PolicySettings{
			Enabled: true,
			Mode:    "enforcing",
		},
		Store: StoreSettings{
			Path: "~/.local/share/rigup/runs.db",
		},
		Telemetry: TelemetrySettings{
			LogLevel:       "info",
			LogFormat:      "console",
			MetricsEnabled: true,
			SamplingRate:   1.0,
		},
	}
}

// applyDefaults fills zero-valued manifest fields that have built-in
// defaults. Lists are left alone: an explicit empty list means empty.
func applyDefaults(m *Manifest) {
	vm := &m.Toolchain.VersionManager
	if vm.DocsURL == "" {
		vm.DocsURL = DefaultAsdfDocsURL
	}
	if vm.GitRepo == "" {
		vm.GitRepo = DefaultAsdfGitRepo
	}
	if vm.InstallDir == "" {
		vm.InstallDir = DefaultAsdfInstallDir
	}
	if vm.ResolveTimeout == 0 {
		vm.ResolveTimeout = Duration(DefaultResolveTimeout)
	}
	if m.Policy.Mode == "" {
		m.Policy.Mode = "enforcing"
	}
	if m.Telemetry.LogLevel == "" {
		m.Telemetry.LogLevel = "info"
	}
	if m.Telemetry.LogFormat == "" {
		m.Telemetry.LogFormat = "console"
	}
}
