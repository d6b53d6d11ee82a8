package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

var (
	// ErrNotReady is returned for mutations before the catalog has loaded
	ErrNotReady = errors.New("session is not ready")
	// ErrSaveInProgress is returned for mutations and saves while a save is in flight
	ErrSaveInProgress = errors.New("save in progress")
	// ErrClosed is returned for every operation on a closed session
	ErrClosed = errors.New("session is closed")
	// ErrValidationInProgress is returned for mutations issued from a change observer
	ErrValidationInProgress = errors.New("validation in progress")
	// ErrServiceNotPresent is returned when mapping a component of a service that is not on the cluster
	ErrServiceNotPresent = errors.New("service is not present on the cluster")
	// ErrLicenseNotAccepted is returned when adding a service whose license was not accepted
	ErrLicenseNotAccepted = errors.New("service license has not been accepted")
	// ErrAlreadyLoaded is returned when Load is called twice
	ErrAlreadyLoaded = errors.New("session is already loaded")
	// ErrNoCatalog is returned when a source loads without a catalog
	ErrNoCatalog = errors.New("source returned no catalog")
)

// DisabledError is returned when a host/component control is disabled
type DisabledError struct {
	HostID      string
	ComponentID string
	Reason      validate.DisableReason
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("cannot change %s on host %s: %s", e.ComponentID, e.HostID, e.Reason)
}

// InvalidMappingError is returned by Save when the mapping does not validate
type InvalidMappingError struct {
	Problems []string
}

func (e *InvalidMappingError) Error() string {
	if len(e.Problems) == 0 {
		return "mapping is invalid"
	}
	return fmt.Sprintf("mapping is invalid:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// SaveError wraps a backend failure. The edits are kept and the save can be retried.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save mapping: %v", e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// reasonLabel turns an error into a low-cardinality metric label
func reasonLabel(err error) string {
	var disabled *DisabledError
	switch {
	case errors.As(err, &disabled):
		return string(disabled.Reason)
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrSaveInProgress):
		return "save_in_progress"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrValidationInProgress):
		return "validation_in_progress"
	case errors.Is(err, ErrServiceNotPresent):
		return "service_not_present"
	case errors.Is(err, ErrLicenseNotAccepted):
		return "license_not_accepted"
	case errors.Is(err, catalog.ErrUnknownEntity):
		return "unknown_entity"
	default:
		return "other"
	}
}
