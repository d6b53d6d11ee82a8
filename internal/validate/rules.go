package validate

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

// DisableReason explains why a host/component control is disabled
type DisableReason string

const (
	ReasonNone                        DisableReason = ""
	HostInMaintenanceMode             DisableReason = "HostInMaintenanceMode"
	ComponentServiceLicenseUnaccepted DisableReason = "ComponentServiceLicenseUnaccepted"
	ComponentAtMaxCapacity            DisableReason = "ComponentAtMaxCapacity"
	ActionDoesNotAllowThisComponent   DisableReason = "ActionDoesNotAllowThisComponent"
	ActionDoesNotAllowThisHost        DisableReason = "ActionDoesNotAllowThisHost"
)

// pairContext is what a rule sees for one host/component pair
type pairContext struct {
	host      catalog.Host
	component catalog.Component
	mapped    bool
	current   int
	max       *int
	licensed  bool
	scope     *ActionScope
}

type rule struct {
	reason       DisableReason
	unmappedOnly bool // never disables removing an existing edge
	applies      func(p *pairContext) bool
}

// rules is evaluated in order; the first match wins.
// Host-level rules come first, then component-level, then action scope.
var rules = []rule{
	{
		reason: HostInMaintenanceMode,
		applies: func(p *pairContext) bool {
			return p.host.MaintenanceMode.Blocks()
		},
	},
	{
		reason:       ComponentServiceLicenseUnaccepted,
		unmappedOnly: true,
		applies: func(p *pairContext) bool {
			return !p.licensed
		},
	},
	{
		reason:       ComponentAtMaxCapacity,
		unmappedOnly: true,
		applies: func(p *pairContext) bool {
			return p.max != nil && p.current >= *p.max
		},
	},
	{
		reason: ActionDoesNotAllowThisComponent,
		applies: func(p *pairContext) bool {
			return p.scope != nil && !p.scope.AllowsComponent(p.component.ID)
		},
	},
	{
		reason: ActionDoesNotAllowThisHost,
		applies: func(p *pairContext) bool {
			return p.scope != nil && !p.scope.AllowsHost(p.component.ID, p.host.ID)
		},
	},
}

func firstReason(p *pairContext) DisableReason {
	for _, r := range rules {
		if r.unmappedOnly && p.mapped {
			continue
		}
		if r.applies(p) {
			return r.reason
		}
	}
	return ReasonNone
}

// ActionScope restricts a session to the components and hosts an action may target
type ActionScope struct {
	Name string

	// Components is the allow-list; nil allows every component
	Components sets.Set[string]

	// HostAllowed decides per component which hosts are allowed; nil allows every host
	HostAllowed func(componentID, hostID string) bool

	RequireTarget bool
}

// ScopeFromAction builds a scope from a declarative action definition
func ScopeFromAction(a catalog.ActionDefinition) *ActionScope {
	scope := &ActionScope{
		Name:          a.Name,
		RequireTarget: a.RequireTarget,
	}
	if len(a.AllowedComponents) > 0 {
		scope.Components = sets.New(a.AllowedComponents...)
	}
	if len(a.AllowedHosts) > 0 {
		allowed := make(map[string]sets.Set[string], len(a.AllowedHosts))
		for comp, hosts := range a.AllowedHosts {
			allowed[comp] = sets.New(hosts...)
		}
		scope.HostAllowed = func(componentID, hostID string) bool {
			hosts, ok := allowed[componentID]
			if !ok {
				return true
			}
			return hosts.Has(hostID)
		}
	}
	return scope
}

// AllowsComponent reports whether the action may target a component
func (s *ActionScope) AllowsComponent(componentID string) bool {
	return s.Components == nil || s.Components.Has(componentID)
}

// AllowsHost reports whether the action may target a host for a component
func (s *ActionScope) AllowsHost(componentID, hostID string) bool {
	return s.HostAllowed == nil || s.HostAllowed(componentID, hostID)
}

// Contains reports whether an edge is inside the action's allow-list
func (s *ActionScope) Contains(hostID, componentID string) bool {
	return s.AllowsComponent(componentID) && s.AllowsHost(componentID, hostID)
}
