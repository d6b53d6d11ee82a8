// Package catalog holds the read-only topology snapshot of one cluster:
// its hosts, services and the components that can be mapped onto hosts.
package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownEntity is returned when a host, service or component id is not part of the catalog
var ErrUnknownEntity = errors.New("unknown entity")

// Catalog is an indexed, immutable view of a Topology.
// Slices returned by its accessors are copies.
type Catalog struct {
	meta       Metadata
	hosts      []Host
	services   []Service
	components []Component
	actions    []ActionDefinition
	warnings   []string

	hostIndex      map[string]int
	serviceIndex   map[string]int
	componentIndex map[string]int
}

// New indexes a topology. It fails only on structural problems (missing or
// duplicate ids); dangling service references are left for the constraint
// resolver to report per component.
func New(t *Topology) (*Catalog, error) {
	if t == nil {
		return nil, fmt.Errorf("topology cannot be nil")
	}
	t.WithDefaults()
	warnings, err := ValidateWithWarnings(t)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		meta:           t.Metadata,
		warnings:       warnings,
		hostIndex:      make(map[string]int, len(t.Hosts)),
		serviceIndex:   make(map[string]int, len(t.Services)),
		componentIndex: make(map[string]int),
	}

	c.hosts = append(c.hosts, t.Hosts...)
	for i, h := range c.hosts {
		c.hostIndex[h.ID] = i
	}

	for _, svc := range t.Services {
		svc.DependsOn = append([]string(nil), svc.DependsOn...)
		svc.Components = append([]Component(nil), svc.Components...)
		c.serviceIndex[svc.ID] = len(c.services)
		c.services = append(c.services, svc)
		for _, comp := range svc.Components {
			c.componentIndex[comp.ID] = len(c.components)
			c.components = append(c.components, comp)
		}
	}

	c.actions = append(c.actions, t.Actions...)
	return c, nil
}

// ClusterID returns the cluster this catalog was loaded for
func (c *Catalog) ClusterID() string {
	return c.meta.Cluster
}

// Warnings returns the non-critical topology problems found when the catalog was built
func (c *Catalog) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Metadata returns the topology metadata
func (c *Catalog) Metadata() Metadata {
	return c.meta
}

// Hosts returns all hosts in catalog order
func (c *Catalog) Hosts() []Host {
	return append([]Host(nil), c.hosts...)
}

// Host looks up a host by id
func (c *Catalog) Host(id string) (Host, bool) {
	i, ok := c.hostIndex[id]
	if !ok {
		return Host{}, false
	}
	return c.hosts[i], true
}

// HasHost checks if a host exists
func (c *Catalog) HasHost(id string) bool {
	_, ok := c.hostIndex[id]
	return ok
}

// Services returns all services in catalog order
func (c *Catalog) Services() []Service {
	return append([]Service(nil), c.services...)
}

// Service looks up a service by id
func (c *Catalog) Service(id string) (Service, bool) {
	i, ok := c.serviceIndex[id]
	if !ok {
		return Service{}, false
	}
	return c.services[i], true
}

// HasService checks if a service exists
func (c *Catalog) HasService(id string) bool {
	_, ok := c.serviceIndex[id]
	return ok
}

// Components returns all components in catalog order
func (c *Catalog) Components() []Component {
	return append([]Component(nil), c.components...)
}

// Component looks up a component by id
func (c *Catalog) Component(id string) (Component, bool) {
	i, ok := c.componentIndex[id]
	if !ok {
		return Component{}, false
	}
	return c.components[i], true
}

// HasComponent checks if a component exists
func (c *Catalog) HasComponent(id string) bool {
	_, ok := c.componentIndex[id]
	return ok
}

// ComponentsOf returns the components owned by a service
func (c *Catalog) ComponentsOf(serviceID string) []Component {
	result := make([]Component, 0)
	for _, comp := range c.components {
		if comp.ServiceID == serviceID {
			result = append(result, comp)
		}
	}
	return result
}

// InstalledServices returns the ids of services marked installed, in catalog order
func (c *Catalog) InstalledServices() []string {
	result := make([]string, 0)
	for _, svc := range c.services {
		if svc.Installed {
			result = append(result, svc.ID)
		}
	}
	return result
}

// Actions returns the declared action definitions
func (c *Catalog) Actions() []ActionDefinition {
	return append([]ActionDefinition(nil), c.actions...)
}

// Action looks up an action definition by name
func (c *Catalog) Action(name string) (ActionDefinition, bool) {
	for _, a := range c.actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// WithMaintenanceMode returns a copy of the catalog with one host's maintenance mode replaced
func (c *Catalog) WithMaintenanceMode(hostID string, mode MaintenanceMode) (*Catalog, error) {
	i, ok := c.hostIndex[hostID]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", hostID, ErrUnknownEntity)
	}
	if !validMaintenanceModes[mode] {
		return nil, fmt.Errorf("invalid maintenance mode %q", mode)
	}

	clone := *c
	clone.hosts = append([]Host(nil), c.hosts...)
	clone.hosts[i].MaintenanceMode = mode
	return &clone, nil
}

// WithLicense returns a copy of the catalog with one service's license status replaced
func (c *Catalog) WithLicense(serviceID string, status LicenseStatus) (*Catalog, error) {
	i, ok := c.serviceIndex[serviceID]
	if !ok {
		return nil, fmt.Errorf("service %q: %w", serviceID, ErrUnknownEntity)
	}

	clone := *c
	clone.services = append([]Service(nil), c.services...)
	clone.services[i].License = status
	return &clone, nil
}
