package policy

import "time"

// Severity is the weight of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block the run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run in enforcing mode.
	SeverityError Severity = "error"
)

// Policy is a single rego rule set evaluated against the plan.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description"`

	// Rego contains the policy source.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the policy participates in evaluation.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation is a single policy finding against the plan.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// StepID identifies the offending step, when one can be named.
	StepID string `json:"step_id,omitempty"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity is the finding severity.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all enabled policies against a plan.
type Result struct {
	// Allowed is false when any error-severity violation exists.
	Allowed bool `json:"allowed"`

	// Violations lists blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies names the policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long evaluation took.
	Duration time.Duration `json:"duration"`
}

// PlanInput is the document policies evaluate. It is a flattened view of
// the plan and the manifest fields policies care about.
type PlanInput struct {
	// Steps lists every planned step.
	Steps []StepInput `json:"steps"`

	// Runtimes lists the pinned runtimes.
	Runtimes []RuntimeInput `json:"runtimes"`

	// Profiles lists the profile files and their block markers.
	Profiles []ProfileInput `json:"profiles"`

	// VersionManager names the sources the bootstrap pulls from.
	VersionManager *VersionManagerInput `json:"version_manager,omitempty"`

	// Context carries evaluation metadata.
	Context *Context `json:"context"`
}

// StepInput is the policy-facing view of one step.
type StepInput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Required     bool     `json:"required"`
	Dependencies []string `json:"dependencies"`
}

// RuntimeInput is the policy-facing view of one pinned runtime.
type RuntimeInput struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	PluginURL string `json:"plugin_url,omitempty"`
}

// ProfileInput is the policy-facing view of one profile file.
type ProfileInput struct {
	Path    string   `json:"path"`
	Markers []string `json:"markers"`
	Lines   []string `json:"lines"`
}

// VersionManagerInput is the policy-facing view of the version manager
// bootstrap sources.
type VersionManagerInput struct {
	DocsURL string `json:"docs_url"`
	GitRepo string `json:"git_repo"`
}

// Context carries metadata about the evaluation.
type Context struct {
	// ManifestPath is the manifest the plan was built from.
	ManifestPath string `json:"manifest_path,omitempty"`

	// Timestamp is when the evaluation runs.
	Timestamp time.Time `json:"timestamp"`
}
