// Package errdefs holds the error types surfaced to operators and automation.
// Every type carries a stable discriminator returned by Code.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation        = "validation_error"
	CodePlanningConflict  = "planning_conflict"
	CodeChecksumMismatch  = "checksum_mismatch"
	CodeDestructiveBlock  = "destructive_blocked"
	CodeExecution         = "execution_error"
	CodeTransform         = "plan_transform_failed"
	CodeGeneric           = "error"
	ConflictRename        = "rename_conflict"
	ConflictUnknownRename = "rename_target_missing"
	ConflictUnsupported   = "unsupported_change"
	ConflictDuplicateKey  = "duplicate_operation_key"
)

// Coded is implemented by every error in this package.
type Coded interface {
	error
	Code() string
}

// CodeOf returns the discriminator of the first Coded error in err's chain,
// or CodeGeneric.
func CodeOf(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeGeneric
}

// Issue is one problem found while validating declarations.
type Issue struct {
	Object  string `json:"object"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s: %s", i.Object, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Object, i.Field, i.Message)
}

// ValidationError reports malformed or inconsistent declarations.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Code() string { return CodeValidation }

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid schema declaration: " + e.Issues[0].String()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("invalid schema declarations (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// PlanningConflictError reports rename mappings that cannot be honored or
// changes that cannot be expressed as in-place operations.
type PlanningConflictError struct {
	Reason string
	Object string
	Detail string
}

func (e *PlanningConflictError) Code() string { return CodePlanningConflict }

func (e *PlanningConflictError) Error() string {
	return fmt.Sprintf("planning conflict (%s) on %s: %s", e.Reason, e.Object, e.Detail)
}

// Drift is a single checksum disagreement between the journal and an artifact.
type Drift struct {
	Migration string `json:"migration"`
	Recorded  string `json:"recorded"`
	Actual    string `json:"actual"`
}

// ChecksumMismatchError reports applied migrations whose content changed.
type ChecksumMismatchError struct {
	Drifts []Drift
}

func (e *ChecksumMismatchError) Code() string { return CodeChecksumMismatch }

func (e *ChecksumMismatchError) Error() string {
	names := make([]string, 0, len(e.Drifts))
	for _, d := range e.Drifts {
		names = append(names, d.Migration)
	}
	return fmt.Sprintf("checksum mismatch for applied migration(s) %s: content changed after it was applied", strings.Join(names, ", "))
}

// BlockedOperation describes one destructive operation that stopped execution.
type BlockedOperation struct {
	Migration      string `json:"migration"`
	Type           string `json:"type"`
	Key            string `json:"key"`
	Risk           string `json:"risk"`
	Reason         string `json:"reason"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// DestructiveBlockedError is an intentional stop, not a failure: a pending
// migration contains danger operations and no override was given.
type DestructiveBlockedError struct {
	Migration  string
	Operations []BlockedOperation
	Applied    []string
}

func (e *DestructiveBlockedError) Code() string { return CodeDestructiveBlock }

func (e *DestructiveBlockedError) Error() string {
	return fmt.Sprintf("migration %s contains %d destructive operation(s); re-run with --allow-destructive to apply", e.Migration, len(e.Operations))
}

// ExecutionError reports a statement rejected by the executor.
type ExecutionError struct {
	Migration string
	Statement string
	Applied   []string
	Err       error
}

func (e *ExecutionError) Code() string { return CodeExecution }

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to apply migration %s: %v", e.Migration, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// TransformError names the pipeline stage that rejected a plan.
type TransformError struct {
	Stage string
	Err   error
}

func (e *TransformError) Code() string { return CodeTransform }

func (e *TransformError) Error() string {
	return fmt.Sprintf("plan transform %q failed: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
