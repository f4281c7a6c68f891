// Package steps implements the concrete provisioning steps and the plan
// builder that wires them together from a manifest: system package installs,
// asdf release resolution and bootstrap, shell profile blocks, plugin
// registration, pinned runtime installs, and the hex/phoenix toolchain.
//
// Every step is written to be re-runnable: state probes (HasBlock,
// IsRuntimeInstalled, HasPlugin, ...) back the engine's live checks, and the
// mutating operations no-op when the desired state already holds.
package steps
