// Package config provides manifest loading, Starlark overlays and CUE
// schema validation for rigup environment provisioning.
//
// # Overview
//
// The config package implements the manifest evaluation phase of rigup,
// responsible for reading the YAML manifest, applying an optional Starlark
// overlay script, filling defaults, and validating the result at two
// levels: struct tags for shape, CUE for value constraints such as exact
// version syntax.
//
// # Components
//
// Loader: reads a manifest file, runs the overlay, and validates. An empty
// path yields the built-in default manifest for an elixir/phoenix host.
//
// SchemaRegistry: manages the CUE schemas manifests are validated against
// and supports custom schema registration.
//
// OverlayEvaluator: time-bounded Starlark execution. The script receives
// the decoded manifest as a dict named "manifest" and rewrites it by
// mutating the dict in place.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	m, err := loader.Load(ctx, "rigup.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(m.Toolchain.Runtimes)
//
// # Manifest Structure
//
// A minimal manifest pins the runtimes and lists the system packages:
//
//	toolchain:
//	  version_manager:
//	    docs_url: https://asdf-vm.com/guide/getting-started.html
//	    git_repo: https://github.com/asdf-vm/asdf.git
//	    install_dir: ~/.asdf
//	  runtimes:
//	    - name: erlang
//	      version: 24.2.1
//	    - name: elixir
//	      version: 1.13.3
//	  packages: [git, curl, build-essential]
package config
