package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a step failure. Every failure is terminal for the run;
// the kind is carried through to the final user-facing message and the store.
type ErrorKind string

const (
	// ErrKindUserDeclined indicates the operator declined the confirmation prompt.
	ErrKindUserDeclined ErrorKind = "user-declined"

	// ErrKindResolution indicates the remote version lookup failed
	// (fetch error, timeout, or the expected pattern no longer matches).
	ErrKindResolution ErrorKind = "resolution"

	// ErrKindIO indicates a profile file mutation failed.
	ErrKindIO ErrorKind = "io"

	// ErrKindPackageInstall indicates the system package manager exited non-zero.
	ErrKindPackageInstall ErrorKind = "package-install"

	// ErrKindPluginRegistration indicates a version-manager plugin could not be registered.
	ErrKindPluginRegistration ErrorKind = "plugin-registration"

	// ErrKindRuntimeInstall indicates a runtime install or activation exited non-zero.
	ErrKindRuntimeInstall ErrorKind = "runtime-install"

	// ErrKindExternalTool indicates an auxiliary tool invocation
	// (hex bootstrap, framework generator, editor install) exited non-zero.
	ErrKindExternalTool ErrorKind = "external-tool"

	// ErrKindValidation indicates an invalid manifest or step graph.
	ErrKindValidation ErrorKind = "validation"
)

// StepError is a classified error produced by a pipeline step.
type StepError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// StepID is the step that produced the error, if known.
	StepID string `json:"step_id,omitempty"`

	// ExitCode is the exit code of the underlying command, if one ran.
	ExitCode int `json:"exit_code,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] %s (step=%s): %s", e.Kind, e.Message, e.StepID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithStep attaches the owning step ID to the error.
func (e *StepError) WithStep(stepID string) *StepError {
	e.StepID = stepID
	return e
}

// WithExitCode attaches a subprocess exit code to the error.
func (e *StepError) WithExitCode(code int) *StepError {
	e.ExitCode = code
	return e
}

// NewUserDeclinedError reports that the operator declined to proceed.
func NewUserDeclinedError() *StepError {
	return &StepError{Kind: ErrKindUserDeclined, Message: "provisioning declined"}
}

// NewResolutionError creates a remote version lookup error.
func NewResolutionError(message string, err error) *StepError {
	return &StepError{Kind: ErrKindResolution, Message: message, Err: err}
}

// NewIOError creates a profile mutation error.
func NewIOError(message string, err error) *StepError {
	return &StepError{Kind: ErrKindIO, Message: message, Err: err}
}

// NewPackageInstallError creates a system package install error.
func NewPackageInstallError(message string, exitCode int, err error) *StepError {
	return &StepError{Kind: ErrKindPackageInstall, Message: message, ExitCode: exitCode, Err: err}
}

// NewPluginRegistrationError creates a plugin registration error.
func NewPluginRegistrationError(plugin string, err error) *StepError {
	return &StepError{Kind: ErrKindPluginRegistration, Message: fmt.Sprintf("failed to register plugin %s", plugin), Err: err}
}

// NewRuntimeInstallError creates a runtime install/activation error.
func NewRuntimeInstallError(runtime, version string, exitCode int, err error) *StepError {
	return &StepError{
		Kind:     ErrKindRuntimeInstall,
		Message:  fmt.Sprintf("failed to install %s %s", runtime, version),
		ExitCode: exitCode,
		Err:      err,
	}
}

// NewExternalToolError creates an auxiliary tool invocation error.
func NewExternalToolError(tool string, exitCode int, err error) *StepError {
	return &StepError{
		Kind:     ErrKindExternalTool,
		Message:  fmt.Sprintf("%s failed", tool),
		ExitCode: exitCode,
		Err:      err,
	}
}

// NewValidationError creates a manifest or step graph validation error.
func NewValidationError(message string, err error) *StepError {
	return &StepError{Kind: ErrKindValidation, Message: message, Err: err}
}

// KindOf returns the classification of err, or ErrKindValidation when err is
// not a StepError (unclassified failures block the run either way).
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrKindValidation
}

// IsUserDeclined returns true if the error is a declined confirmation.
func IsUserDeclined(err error) bool {
	var se *StepError
	return errors.As(err, &se) && se.Kind == ErrKindUserDeclined
}

// ExitCodeOf returns the subprocess exit code attached to err, or -1.
func ExitCodeOf(err error) int {
	var se *StepError
	if errors.As(err, &se) && se.ExitCode != 0 {
		return se.ExitCode
	}
	return -1
}
