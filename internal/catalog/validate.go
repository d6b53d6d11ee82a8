package catalog

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidationError represents a catalog validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

var validMaintenanceModes = map[MaintenanceMode]bool{
	MaintenanceOff:      true,
	MaintenanceOn:       true,
	MaintenanceChanging: true,
}

var validLicenses = map[LicenseStatus]bool{
	LicenseAbsent:     true,
	LicenseUnaccepted: true,
	LicenseAccepted:   true,
}

// Validate checks the structural integrity of a topology: ids, enums and bounds.
// References between services are checked by the constraint resolver instead,
// so that one broken service does not make the whole cluster unreadable.
func Validate(t *Topology) error {
	var errs ValidationErrors

	if t.APIVersion != "" && t.APIVersion != DefaultAPIVersion {
		errs = append(errs, ValidationError{
			Field:   "apiVersion",
			Message: fmt.Sprintf("unsupported version %q, expected %q", t.APIVersion, DefaultAPIVersion),
		})
	}
	if t.Kind != "" && t.Kind != TopologyKind {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind %q, expected %q", t.Kind, TopologyKind),
		})
	}
	if t.Metadata.Cluster == "" {
		errs = append(errs, ValidationError{Field: "metadata.cluster", Message: "required"})
	} else if msgs := validation.IsDNS1123Label(t.Metadata.Cluster); len(msgs) > 0 {
		// the cluster id names the store's ConfigMap and labels it
		errs = append(errs, ValidationError{Field: "metadata.cluster", Message: strings.Join(msgs, "; ")})
	}

	hostIDs := make(map[string]bool, len(t.Hosts))
	for i, h := range t.Hosts {
		field := fmt.Sprintf("hosts[%d]", i)
		if h.ID == "" {
			errs = append(errs, ValidationError{Field: field + ".id", Message: "required"})
			continue
		}
		if hostIDs[h.ID] {
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate host id %q", h.ID)})
		}
		hostIDs[h.ID] = true
		if h.MaintenanceMode != "" && !validMaintenanceModes[h.MaintenanceMode] {
			errs = append(errs, ValidationError{
				Field:   field + ".maintenanceMode",
				Message: "must be off, on, or changing",
			})
		}
	}

	serviceIDs := make(map[string]bool, len(t.Services))
	componentIDs := make(map[string]bool)
	for i, svc := range t.Services {
		field := fmt.Sprintf("services[%d]", i)
		if svc.ID == "" {
			errs = append(errs, ValidationError{Field: field + ".id", Message: "required"})
			continue
		}
		if serviceIDs[svc.ID] {
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate service id %q", svc.ID)})
		}
		serviceIDs[svc.ID] = true
		if svc.License != "" && !validLicenses[svc.License] {
			errs = append(errs, ValidationError{
				Field:   field + ".license",
				Message: "must be absent, unaccepted, or accepted",
			})
		}

		for j, comp := range svc.Components {
			cfield := fmt.Sprintf("%s.components[%d]", field, j)
			if comp.ID == "" {
				errs = append(errs, ValidationError{Field: cfield + ".id", Message: "required"})
				continue
			}
			if componentIDs[comp.ID] {
				errs = append(errs, ValidationError{Field: cfield + ".id", Message: fmt.Sprintf("duplicate component id %q", comp.ID)})
			}
			componentIDs[comp.ID] = true
			if comp.ServiceID != "" && comp.ServiceID != svc.ID {
				errs = append(errs, ValidationError{
					Field:   cfield + ".service",
					Message: fmt.Sprintf("component is declared under %q but names service %q", svc.ID, comp.ServiceID),
				})
			}
			if c := comp.Constraints; c != nil {
				if c.Min < 0 {
					errs = append(errs, ValidationError{Field: cfield + ".constraints.min", Message: "must be non-negative"})
				}
				if c.Max != nil && *c.Max < c.Min {
					errs = append(errs, ValidationError{
						Field:   cfield + ".constraints.max",
						Message: fmt.Sprintf("max (%d) is below min (%d)", *c.Max, c.Min),
					})
				}
			}
		}
	}

	actionNames := make(map[string]bool, len(t.Actions))
	for i, a := range t.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if a.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "required"})
			continue
		}
		if actionNames[a.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate action %q", a.Name)})
		}
		actionNames[a.Name] = true
		for _, id := range a.AllowedComponents {
			if !componentIDs[id] {
				errs = append(errs, ValidationError{
					Field:   field + ".allowedComponents",
					Message: fmt.Sprintf("unknown component %q", id),
				})
			}
		}
		for compID, hosts := range a.AllowedHosts {
			if !componentIDs[compID] {
				errs = append(errs, ValidationError{
					Field:   field + ".allowedHosts",
					Message: fmt.Sprintf("unknown component %q", compID),
				})
			}
			for _, hostID := range hosts {
				if !hostIDs[hostID] {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.allowedHosts.%s", field, compID),
						Message: fmt.Sprintf("unknown host %q", hostID),
					})
				}
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateWithWarnings validates a topology and returns warnings for non-critical issues
func ValidateWithWarnings(t *Topology) ([]string, error) {
	var warnings []string

	for _, h := range t.Hosts {
		if h.MaintenanceMode.Blocks() && !h.MaintenanceModeAvailable {
			warnings = append(warnings, fmt.Sprintf("host %s is in maintenance mode but does not declare maintenanceModeAvailable", h.ID))
		}
	}
	for _, svc := range t.Services {
		if len(svc.Components) == 0 {
			warnings = append(warnings, fmt.Sprintf("service %s has no components", svc.ID))
		}
		if svc.Installed && svc.License == LicenseUnaccepted {
			warnings = append(warnings, fmt.Sprintf("service %s is installed but its license is not accepted", svc.ID))
		}
	}

	if err := Validate(t); err != nil {
		return warnings, err
	}
	return warnings, nil
}
