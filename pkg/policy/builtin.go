package policy

// GetBuiltinPolicies returns the policies every plan is checked against.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		pinnedVersionsPolicy(),
		pluginSourcePolicy(),
		remoteInstallPolicy(),
		profileMarkerPolicy(),
		stepNamingPolicy(),
	}
}

// pinnedVersionsPolicy rejects runtimes that are not pinned to an exact
// version: no ranges, no "latest".
func pinnedVersionsPolicy() Policy {
	return Policy{
		Name:        "pinned-runtime-versions",
		Description: "Runtimes must pin exact versions for reproducible hosts",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"versions", "reproducibility"},
		Rego: `package rigup.policies.versions

import rego.v1

deny contains violation if {
	some runtime in input.runtimes
	not regex.match("^[0-9]+\\.[0-9]+\\.[0-9]+([.-].+)?$", runtime.version)
	violation := {
		"message": sprintf("Runtime %s version '%s' is not an exact version", [runtime.name, runtime.version]),
		"severity": "error",
		"step_id": sprintf("runtime:%s", [runtime.name]),
	}
}

deny contains violation if {
	some runtime in input.runtimes
	lower(runtime.version) == "latest"
	violation := {
		"message": sprintf("Runtime %s must not float on 'latest'", [runtime.name]),
		"severity": "error",
		"step_id": sprintf("runtime:%s", [runtime.name]),
	}
}
`,
	}
}

// pluginSourcePolicy rejects plugin source overrides that are not https.
func pluginSourcePolicy() Policy {
	return Policy{
		Name:        "https-plugin-source",
		Description: "Plugin source overrides must use https",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"supply-chain"},
		Rego: `package rigup.policies.plugins

import rego.v1

deny contains violation if {
	some runtime in input.runtimes
	runtime.plugin_url != ""
	not startswith(runtime.plugin_url, "https://")
	violation := {
		"message": sprintf("Plugin source for %s must use https, got '%s'", [runtime.name, runtime.plugin_url]),
		"severity": "error",
		"step_id": sprintf("plugin:%s", [runtime.name]),
	}
}
`,
	}
}

// remoteInstallPolicy rejects install commands sourced from remote text:
// plaintext release-resolution and clone sources, and profile lines that
// pipe a download straight into a shell.
func remoteInstallPolicy() Policy {
	return Policy{
		Name:        "no-remote-install-scripts",
		Description: "Install sources must use https and never pipe remote text into a shell",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"supply-chain"},
		Rego: `package rigup.policies.install

import rego.v1

deny contains violation if {
	input.version_manager.docs_url != ""
	not startswith(input.version_manager.docs_url, "https://")
	violation := {
		"message": sprintf("Release resolution source '%s' must use https", [input.version_manager.docs_url]),
		"severity": "error",
		"step_id": "resolve-asdf",
	}
}

deny contains violation if {
	input.version_manager.git_repo != ""
	not startswith(input.version_manager.git_repo, "https://")
	violation := {
		"message": sprintf("Bootstrap clone source '%s' must use https", [input.version_manager.git_repo]),
		"severity": "error",
		"step_id": "asdf-bootstrap",
	}
}

deny contains violation if {
	some profile in input.profiles
	some line in profile.lines
	regex.match("(curl|wget)[^|]*\\|\\s*(ba|z|da)?sh", line)
	violation := {
		"message": sprintf("Profile %s pipes a download into a shell: '%s'", [profile.path, line]),
		"severity": "error",
	}
}
`,
	}
}

// profileMarkerPolicy rejects profile blocks without markers, since the
// marker is what makes the append idempotent.
func profileMarkerPolicy() Policy {
	return Policy{
		Name:        "profile-marker-required",
		Description: "Every profile block must carry a non-empty marker",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"profiles", "idempotency"},
		Rego: `package rigup.policies.profiles

import rego.v1

deny contains violation if {
	some profile in input.profiles
	some marker in profile.markers
	trim_space(marker) == ""
	violation := {
		"message": sprintf("Profile %s has a block with an empty marker", [profile.path]),
		"severity": "error",
	}
}
`,
	}
}

// stepNamingPolicy warns about step IDs that stray from the lowercase
// kebab/colon convention the run journal and logs assume.
func stepNamingPolicy() Policy {
	return Policy{
		Name:        "step-naming",
		Description: "Step IDs should be lowercase with hyphens and colons",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package rigup.policies.naming

import rego.v1

deny contains violation if {
	some step in input.steps
	not regex.match("^[a-z0-9][a-z0-9:~/._-]*$", step.id)
	violation := {
		"message": sprintf("Step ID '%s' does not follow naming conventions", [step.id]),
		"severity": "warning",
		"step_id": step.id,
	}
}
`,
	}
}
