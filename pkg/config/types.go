package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rigup/rigup/pkg/telemetry"
)

// Manifest is the declarative description of the environment to provision:
// the version manager, the pinned runtimes, the supporting system packages,
// and the shell profile fragments that expose everything.
type Manifest struct {
	// Toolchain describes the version manager and runtimes to install.
	Toolchain Toolchain `json:"toolchain" yaml:"toolchain" validate:"required"`

	// Profiles lists shell profile files and the blocks appended to them.
	Profiles []ProfileFile `json:"profiles,omitempty" yaml:"profiles,omitempty" validate:"dive"`

	// Policy configures plan policy evaluation.
	Policy PolicySettings `json:"policy" yaml:"policy"`

	// Store configures the run journal.
	Store StoreSettings `json:"store" yaml:"store"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetrySettings `json:"telemetry" yaml:"telemetry"`

	// Overlay is an optional Starlark script that rewrites the manifest
	// before validation, e.g. to derive versions per host.
	Overlay string `json:"overlay,omitempty" yaml:"overlay,omitempty"`
}

// Toolchain describes the version manager and everything installed through it.
type Toolchain struct {
	// VersionManager configures the asdf installation.
	VersionManager VersionManager `json:"version_manager" yaml:"version_manager" validate:"required"`

	// Runtimes lists the language runtimes to install, in manifest order.
	// Ordering constraints between runtimes are applied by the planner.
	Runtimes []RuntimeSpec `json:"runtimes" yaml:"runtimes" validate:"required,min=1,dive"`

	// Packages are the system packages the toolchain builds depend on.
	Packages []string `json:"packages" yaml:"packages" validate:"required,min=1"`

	// Editor is the editor package installed last. Empty skips the step.
	Editor string `json:"editor,omitempty" yaml:"editor,omitempty"`

	// Mix configures the elixir build-tool bootstrap.
	Mix MixSettings `json:"mix" yaml:"mix"`
}

// VersionManager configures how asdf itself is discovered and installed.
type VersionManager struct {
	// DocsURL is the installation docs page the release tag is resolved from.
	DocsURL string `json:"docs_url" yaml:"docs_url" validate:"required,url"`

	// GitRepo is the repository cloned during bootstrap.
	GitRepo string `json:"git_repo" yaml:"git_repo" validate:"required,url"`

	// InstallDir is where asdf is cloned. Supports a leading ~.
	InstallDir string `json:"install_dir" yaml:"install_dir" validate:"required"`

	// ResolveTimeout bounds the docs fetch.
	ResolveTimeout Duration `json:"resolve_timeout,omitempty" yaml:"resolve_timeout,omitempty"`
}

// RuntimeSpec pins one language runtime to an exact version.
type RuntimeSpec struct {
	// Name is the asdf plugin and runtime name (erlang, elixir, nodejs).
	Name string `json:"name" yaml:"name" validate:"required,alphanum"`

	// Version is the exact version to install and pin globally.
	Version string `json:"version" yaml:"version" validate:"required"`

	// PluginURL optionally overrides the plugin source repository.
	PluginURL string `json:"plugin_url,omitempty" yaml:"plugin_url,omitempty" validate:"omitempty,url"`
}

// MixSettings configures hex and the phoenix generator.
type MixSettings struct {
	// HexBootstrap installs hex for the pinned elixir.
	HexBootstrap bool `json:"hex_bootstrap" yaml:"hex_bootstrap"`

	// Phoenix configures the phx_new generator archive.
	Phoenix PhoenixSettings `json:"phoenix" yaml:"phoenix"`
}

// PhoenixSettings pins the phoenix project generator.
type PhoenixSettings struct {
	// Version is the exact phx_new archive version. Empty skips the step.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ProfileFile is one shell profile and the marked blocks it must carry.
type ProfileFile struct {
	// Path is the profile file location. Supports a leading ~.
	Path string `json:"path" yaml:"path" validate:"required"`

	// Blocks are appended in order, each guarded by its marker.
	Blocks []ProfileBlockSpec `json:"blocks" yaml:"blocks" validate:"required,min=1,dive"`
}

// ProfileBlockSpec is a marked profile fragment as declared in the manifest.
type ProfileBlockSpec struct {
	Marker string   `json:"marker" yaml:"marker" validate:"required"`
	Lines  []string `json:"lines" yaml:"lines" validate:"required,min=1"`
}

// PolicySettings configures plan policy evaluation.
type PolicySettings struct {
	// Enabled turns the policy gate on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Paths lists directories or files with additional rego policies.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// Mode is advisory (warn) or enforcing (fail on deny).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`

	// Watch reloads policies when files under Paths change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// StoreSettings configures the run journal.
type StoreSettings struct {
	// Path is the sqlite database location. Empty disables the journal.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// TelemetrySettings is the manifest-facing telemetry configuration.
type TelemetrySettings struct {
	LogLevel        string  `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat       string  `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	MetricsEnabled  bool    `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsAddress  string  `json:"metrics_address,omitempty" yaml:"metrics_address,omitempty"`
	TracingEnabled  bool    `json:"tracing_enabled" yaml:"tracing_enabled"`
	TracingExporter string  `json:"tracing_exporter,omitempty" yaml:"tracing_exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string  `json:"tracing_endpoint,omitempty" yaml:"tracing_endpoint,omitempty"`
	SamplingRate    float64 `json:"sampling_rate,omitempty" yaml:"sampling_rate,omitempty" validate:"omitempty,min=0,max=1"`
}

// ToTelemetryConfig maps the manifest settings onto the telemetry defaults.
func (t TelemetrySettings) ToTelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if t.LogLevel != "" {
		cfg.Logging.Level = t.LogLevel
	}
	if t.LogFormat != "" {
		cfg.Logging.Format = t.LogFormat
	}
	cfg.Metrics.Enabled = t.MetricsEnabled
	cfg.Metrics.ListenAddress = t.MetricsAddress
	cfg.Tracing.Enabled = t.TracingEnabled
	if t.TracingExporter != "" {
		cfg.Tracing.Exporter = t.TracingExporter
	}
	if t.TracingEndpoint != "" {
		cfg.Tracing.Endpoint = t.TracingEndpoint
	}
	if t.SamplingRate > 0 {
		cfg.Tracing.SamplingRate = t.SamplingRate
	}
	return cfg
}

// Duration is a time.Duration that marshals as a human-readable string
// ("30s") in both YAML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts either a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// OverlayResult is the outcome of evaluating a manifest overlay script.
type OverlayResult struct {
	// Output holds the script's exported globals.
	Output map[string]interface{}

	// ExecutionTime is how long the evaluation took.
	ExecutionTime time.Duration

	// Error is the evaluation failure message, if any.
	Error string
}
