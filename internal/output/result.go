package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

// ValidateResult is the outcome of validating a mapping
type ValidateResult struct {
	Cluster          string                     `json:"cluster"`
	Valid            bool                       `json:"valid"`
	Errors           []string                   `json:"errors"`
	Warnings         []string                   `json:"warnings"`
	RequiredServices []string                   `json:"requiredServices"`
	Reports          []validate.ViolationReport `json:"reports"`
	Disabled         []validate.DisabledPair    `json:"disabled,omitempty"`
}

// ApplyResult represents the result of saving a mapping
type ApplyResult struct {
	Success    bool             `json:"success"`
	Cluster    string           `json:"cluster"`
	Target     string           `json:"target"` // file or configmap
	Operations []diff.Operation `json:"operations"`
	Revision   int              `json:"revision,omitempty"`
	DryRun     bool             `json:"dryRun,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// DiffResult is the pending change set against the saved mapping
type DiffResult struct {
	Cluster    string           `json:"cluster"`
	Operations []diff.Operation `json:"operations"`
	Added      int              `json:"added"`
	Removed    int              `json:"removed"`
}

// ListResult represents a list of items
type ListResult struct {
	Success bool        `json:"success"`
	Items   interface{} `json:"items"`
	Count   int         `json:"count"`
	Error   string      `json:"error,omitempty"`
}

// Writer handles output in different formats
type Writer struct {
	out    io.Writer
	format string // "text" or "json"
	ciMode bool
}

// NewWriter creates a new output writer
func NewWriter(out io.Writer, format string, ciMode bool) *Writer {
	if format == "" {
		format = "text"
	}
	return &Writer{
		out:    out,
		format: format,
		ciMode: ciMode,
	}
}

// WriteValidateResult writes a validation result. Text output lists the
// errors and warnings; in CI mode it is reduced to one line per problem.
func (w *Writer) WriteValidateResult(result *ValidateResult) error {
	if w.format == "json" {
		return w.WriteJSON(result)
	}

	if w.ciMode {
		for _, e := range result.Errors {
			fmt.Fprintf(w.out, "error: %s\n", e)
		}
		for _, warn := range result.Warnings {
			fmt.Fprintf(w.out, "warning: %s\n", warn)
		}
		if result.Valid {
			fmt.Fprintf(w.out, "%s: valid\n", result.Cluster)
		} else {
			fmt.Fprintf(w.out, "%s: invalid (%d errors)\n", result.Cluster, len(result.Errors))
		}
		return nil
	}

	if result.Valid {
		fmt.Fprintf(w.out, "✓ mapping for %s is valid\n", result.Cluster)
	} else {
		fmt.Fprintf(w.out, "✗ mapping for %s is invalid\n", result.Cluster)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w.out, "  ✗ %s\n", e)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w.out, "  ! %s\n", warn)
	}
	if len(result.RequiredServices) > 0 {
		fmt.Fprintf(w.out, "  → add required services: %v\n", result.RequiredServices)
	}
	return nil
}

// WriteDiffResult writes the pending operations
func (w *Writer) WriteDiffResult(result *DiffResult) error {
	if w.format == "json" {
		return w.WriteJSON(result)
	}
	for _, op := range result.Operations {
		fmt.Fprintln(w.out, op.String())
	}
	fmt.Fprintln(w.out, diff.Stats{Added: result.Added, Removed: result.Removed}.String())
	return nil
}

// WriteApplyResult writes a save result
func (w *Writer) WriteApplyResult(result *ApplyResult) error {
	if w.format == "json" {
		return w.WriteJSON(result)
	}

	// Normal text output is handled by the command itself
	if !w.ciMode {
		return nil
	}

	switch {
	case !result.Success:
		fmt.Fprintf(w.out, "Save failed: %s\n", result.Error)
	case result.DryRun:
		fmt.Fprintf(w.out, "Would save %d operations to %s\n", len(result.Operations), result.Target)
	case result.Revision > 0:
		fmt.Fprintf(w.out, "Saved %s to %s (revision %d)\n", result.Cluster, result.Target, result.Revision)
	default:
		fmt.Fprintf(w.out, "Saved %s to %s\n", result.Cluster, result.Target)
	}
	return nil
}

// WriteJSON writes any result as JSON
func (w *Writer) WriteJSON(result interface{}) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// IsJSON returns true if output format is JSON
func (w *Writer) IsJSON() bool {
	return w.format == "json"
}

// IsCIMode returns true if CI mode is enabled
func (w *Writer) IsCIMode() bool {
	return w.ciMode
}

// Timer helps track operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMs returns elapsed time in milliseconds
func (t *Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}
