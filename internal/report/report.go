// Package report prints command results as JSON for automation or as styled
// text for people, and maps errors to exit codes.
package report

import (
	"chschema/internal/errdefs"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SchemaVersion is bumped when a payload field is renamed or removed.
const SchemaVersion = 1

const (
	ExitOK      = 0
	ExitError   = 1
	ExitBlocked = 3
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrorPayload is the machine-readable form of a failed command.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Texter is implemented by results that have a human rendering.
type Texter interface {
	Text(s Styles) string
}

type Reporter struct {
	out       io.Writer
	errOut    io.Writer
	format    string
	command   string
	runID     string
	// styles follow the terminal state of their own writer
	styles    Styles
	errStyles Styles
}

func New(out, errOut io.Writer, format, command string) (*Reporter, error) {
	switch format {
	case "", FormatText:
		format = FormatText
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
	return &Reporter{
		out:       out,
		errOut:    errOut,
		format:    format,
		command:   command,
		runID:     uuid.NewString(),
		styles:    NewStyles(out),
		errStyles: NewStyles(errOut),
	}, nil
}

func (r *Reporter) RunID() string {
	return r.runID
}

// JSON reports whether output is the machine-readable envelope.
func (r *Reporter) JSON() bool {
	return r.format == FormatJSON
}

// Result prints a successful command result. In JSON mode the fields of
// result are merged into the envelope.
func (r *Reporter) Result(result any) error {
	if r.format == FormatJSON {
		return r.writeJSON(r.out, result, nil)
	}
	if t, ok := result.(Texter); ok {
		_, err := io.WriteString(r.out, t.Text(r.styles))
		return err
	}
	return nil
}

// Fail prints err and returns the process exit code for it.
func (r *Reporter) Fail(err error) int {
	payload := ErrorPayloadFor(err)
	if r.format == FormatJSON {
		_ = r.writeJSON(r.out, nil, &payload)
	} else {
		fmt.Fprint(r.errOut, errorText(r.errStyles, err, payload))
	}
	return ExitCode(err)
}

func (r *Reporter) writeJSON(w io.Writer, result any, failure *ErrorPayload) error {
	fields := map[string]json.RawMessage{}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("result of %s is not an object: %w", r.command, err)
		}
	}
	set := func(key string, v any) {
		data, _ := json.Marshal(v)
		fields[key] = data
	}
	set("command", r.command)
	set("schemaVersion", SchemaVersion)
	set("runId", r.runID)
	set("ok", failure == nil)
	if failure != nil {
		set("error", failure)
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var blocked *errdefs.DestructiveBlockedError
	if errors.As(err, &blocked) {
		return ExitBlocked
	}
	return ExitError
}

// ErrorPayloadFor builds the error payload, with details for the typed
// errors.
func ErrorPayloadFor(err error) ErrorPayload {
	p := ErrorPayload{Code: errdefs.CodeOf(err), Message: err.Error()}

	var (
		validation *errdefs.ValidationError
		conflict   *errdefs.PlanningConflictError
		mismatch   *errdefs.ChecksumMismatchError
		blocked    *errdefs.DestructiveBlockedError
		execution  *errdefs.ExecutionError
		transform  *errdefs.TransformError
	)
	switch {
	case errors.As(err, &validation):
		p.Details = map[string]any{"issues": validation.Issues}
	case errors.As(err, &conflict):
		p.Details = map[string]any{"reason": conflict.Reason, "object": conflict.Object, "detail": conflict.Detail}
	case errors.As(err, &mismatch):
		p.Details = map[string]any{"drifts": mismatch.Drifts}
	case errors.As(err, &blocked):
		p.Details = map[string]any{"migration": blocked.Migration, "operations": blocked.Operations, "applied": nonNil(blocked.Applied)}
	case errors.As(err, &execution):
		p.Details = map[string]any{"migration": execution.Migration, "statement": execution.Statement, "applied": nonNil(execution.Applied)}
	case errors.As(err, &transform):
		p.Details = map[string]any{"stage": transform.Stage}
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
