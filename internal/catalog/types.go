package catalog

import (
	"encoding/json"
	"fmt"
)

// Topology is the full topology.yaml document for one cluster
type Topology struct {
	APIVersion string             `yaml:"apiVersion" json:"apiVersion"`
	Kind       string             `yaml:"kind" json:"kind"`
	Metadata   Metadata           `yaml:"metadata" json:"metadata"`
	Hosts      []Host             `yaml:"hosts" json:"hosts"`
	Services   []Service          `yaml:"services" json:"services"`
	Actions    []ActionDefinition `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Metadata identifies the cluster the topology belongs to
type Metadata struct {
	Cluster     string            `yaml:"cluster" json:"cluster"`
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
}

// MaintenanceMode is the maintenance state of a host
type MaintenanceMode string

const (
	MaintenanceOff      MaintenanceMode = "off"
	MaintenanceOn       MaintenanceMode = "on"
	MaintenanceChanging MaintenanceMode = "changing"
)

// Blocks reports whether a host in this mode may not receive new work
func (m MaintenanceMode) Blocks() bool {
	return m == MaintenanceOn || m == MaintenanceChanging
}

// UnmarshalJSON accepts booleans as well as strings, since YAML 1.1 reads
// a bare `on`/`off` as true/false before it ever reaches us.
func (m *MaintenanceMode) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*m = MaintenanceOn
		return nil
	case "false":
		*m = MaintenanceOff
		return nil
	case "null":
		*m = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("maintenanceMode: %w", err)
	}
	*m = MaintenanceMode(s)
	return nil
}

// LicenseStatus gates whether a service may be added to the cluster
type LicenseStatus string

const (
	// LicenseAbsent means the service carries no license terms
	LicenseAbsent     LicenseStatus = "absent"
	LicenseUnaccepted LicenseStatus = "unaccepted"
	LicenseAccepted   LicenseStatus = "accepted"
)

// Host is a machine that components can be mapped to
type Host struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// MaintenanceMode is off, on or changing (default: off)
	MaintenanceMode MaintenanceMode `yaml:"maintenanceMode,omitempty" json:"maintenanceMode,omitempty"`

	// MaintenanceModeAvailable tells whether the host supports maintenance mode at all
	MaintenanceModeAvailable bool `yaml:"maintenanceModeAvailable,omitempty" json:"maintenanceModeAvailable,omitempty"`
}

// Service groups components and declares its service-level dependencies
type Service struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	DisplayName string `yaml:"displayName,omitempty" json:"displayName,omitempty"`

	// DependsOn lists services that must also be present on the cluster
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`

	// License status (default: absent)
	License LicenseStatus `yaml:"license,omitempty" json:"license,omitempty"`

	// Installed marks services currently present on the cluster
	Installed bool `yaml:"installed,omitempty" json:"installed,omitempty"`

	Components []Component `yaml:"components,omitempty" json:"components,omitempty"`
}

// Component is a mappable unit of a service
type Component struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	DisplayName string `yaml:"displayName,omitempty" json:"displayName,omitempty"`

	// ServiceID is filled in from the enclosing service when omitted
	ServiceID string `yaml:"service,omitempty" json:"service,omitempty"`

	// Constraints on the number of mapped hosts (default: 0..unbounded)
	Constraints *Constraints `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	// RequiresServices lists services this component needs beyond its own service's dependencies
	RequiresServices []string `yaml:"requiresServices,omitempty" json:"requiresServices,omitempty"`
}

// Constraints bound how many hosts a component may be mapped to
type Constraints struct {
	Min int `yaml:"min,omitempty" json:"min,omitempty"`

	// Max is nil when unbounded
	Max *int `yaml:"max,omitempty" json:"max,omitempty"`
}

// ActionDefinition is the allow-list an action puts on host mapping
type ActionDefinition struct {
	Name string `yaml:"name" json:"name"`

	// AllowedComponents the action may touch; empty means every component
	AllowedComponents []string `yaml:"allowedComponents,omitempty" json:"allowedComponents,omitempty"`

	// AllowedHosts per component; a component without an entry accepts every host
	AllowedHosts map[string][]string `yaml:"allowedHosts,omitempty" json:"allowedHosts,omitempty"`

	// RequireTarget demands at least one mapped pair inside the allow-list
	RequireTarget bool `yaml:"requireTarget,omitempty" json:"requireTarget,omitempty"`
}

// MappingDocument is the mapping.yaml document: a proposed or saved set of host/component pairs
type MappingDocument struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`

	// Services present on the cluster; nil means "as installed in the topology"
	Services []string `yaml:"services,omitempty" json:"services,omitempty"`

	// AcceptedLicenses lists services whose license was accepted in this mapping
	AcceptedLicenses []string `yaml:"acceptedLicenses,omitempty" json:"acceptedLicenses,omitempty"`

	Mapping []MappingEntry `yaml:"mapping" json:"mapping"`
}

// MappingEntry is a single host/component pair
type MappingEntry struct {
	Host      string `yaml:"host" json:"host"`
	Component string `yaml:"component" json:"component"`
}

// Defaults for the documents
const (
	DefaultAPIVersion = "hostmap.dev/v1"
	TopologyKind      = "Topology"
	MappingKind       = "Mapping"
)

// WithDefaults applies default values to a topology
func (t *Topology) WithDefaults() *Topology {
	if t.APIVersion == "" {
		t.APIVersion = DefaultAPIVersion
	}
	if t.Kind == "" {
		t.Kind = TopologyKind
	}
	for i := range t.Hosts {
		h := &t.Hosts[i]
		if h.MaintenanceMode == "" {
			h.MaintenanceMode = MaintenanceOff
		}
		if h.Name == "" {
			h.Name = h.ID
		}
	}
	for i := range t.Services {
		svc := &t.Services[i]
		if svc.License == "" {
			svc.License = LicenseAbsent
		}
		if svc.DisplayName == "" {
			svc.DisplayName = firstNonEmpty(svc.Name, svc.ID)
		}
		for j := range svc.Components {
			comp := &svc.Components[j]
			if comp.ServiceID == "" {
				comp.ServiceID = svc.ID
			}
			if comp.DisplayName == "" {
				comp.DisplayName = firstNonEmpty(comp.Name, comp.ID)
			}
		}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
