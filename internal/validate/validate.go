// Package validate derives the state of a mapping: per-component violation
// reports, the reason each host/component control is disabled, and whether the
// mapping may be saved. Validation never fails; problems are part of the Result.
package validate

import (
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/constraints"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
)

// Input is everything one validation pass reads
type Input struct {
	Catalog  *catalog.Catalog
	Resolver *constraints.Resolver
	Edges    mapping.Snapshot

	// Present is the set of services on the cluster (installed or added this session)
	Present sets.Set[string]
	// Licensed holds services whose license was accepted during the session
	Licensed sets.Set[string]

	Scope *ActionScope
}

// ViolationReport describes one component's constraint state
type ViolationReport struct {
	ComponentID              string   `json:"component"`
	ServiceID                string   `json:"service"`
	Current                  int      `json:"current"`
	Min                      int      `json:"min"`
	Max                      *int     `json:"max,omitempty"`
	IsBelowMin               bool     `json:"isBelowMin"`
	IsAboveMax               bool     `json:"isAboveMax"`
	UnmetServiceDependencies []string `json:"unmetServiceDependencies"`
	ConfigurationError       string   `json:"configurationError,omitempty"`
}

// HasViolation reports whether the component blocks saving
func (r ViolationReport) HasViolation() bool {
	return r.IsBelowMin || len(r.UnmetServiceDependencies) > 0 || r.ConfigurationError != ""
}

// DisabledPair is a host/component control that must be disabled
type DisabledPair struct {
	HostID      string        `json:"host"`
	ComponentID string        `json:"component"`
	Reason      DisableReason `json:"reason"`
}

// Result is the outcome of one validation pass
type Result struct {
	Valid bool `json:"isValid"`
	// MissingTarget is set when an action requires a target and none is mapped
	MissingTarget bool              `json:"missingTarget,omitempty"`
	Reports       []ViolationReport `json:"reports"`
	Disabled      []DisabledPair    `json:"disabled"`

	reports  map[string]int
	disabled map[mapping.Edge]DisableReason
}

// Validate computes the result for an input. The output only depends on the
// input, so equal inputs produce equal (and equally serialized) results.
func Validate(in Input) *Result {
	res := &Result{
		Reports:  make([]ViolationReport, 0),
		Disabled: make([]DisabledPair, 0),
		reports:  make(map[string]int),
		disabled: make(map[mapping.Edge]DisableReason),
	}
	counts := in.Edges.Counts()
	present := in.Present
	if present == nil {
		present = sets.New[string]()
	}

	for _, comp := range in.Catalog.Components() {
		if !present.Has(comp.ServiceID) {
			continue
		}
		res.reports[comp.ID] = len(res.Reports)
		res.Reports = append(res.Reports, buildReport(in, comp, counts[comp.ID], present))
	}

	components := in.Catalog.Components()
	for _, host := range in.Catalog.Hosts() {
		for _, comp := range components {
			p := &pairContext{
				host:      host,
				component: comp,
				mapped:    in.Edges.Contains(mapping.Edge{HostID: host.ID, ComponentID: comp.ID}),
				current:   counts[comp.ID],
				max:       in.Resolver.ConstraintsOf(comp.ID).Max,
				licensed:  isLicensed(in, comp.ServiceID),
				scope:     in.Scope,
			}
			if reason := firstReason(p); reason != ReasonNone {
				res.disabled[mapping.Edge{HostID: host.ID, ComponentID: comp.ID}] = reason
				res.Disabled = append(res.Disabled, DisabledPair{HostID: host.ID, ComponentID: comp.ID, Reason: reason})
			}
		}
	}
	sort.Slice(res.Disabled, func(i, j int) bool {
		if res.Disabled[i].HostID != res.Disabled[j].HostID {
			return res.Disabled[i].HostID < res.Disabled[j].HostID
		}
		return res.Disabled[i].ComponentID < res.Disabled[j].ComponentID
	})

	res.Valid = true
	for _, r := range res.Reports {
		if r.HasViolation() {
			res.Valid = false
			break
		}
	}
	if in.Scope != nil && in.Scope.RequireTarget && !hasTarget(in) {
		res.MissingTarget = true
		res.Valid = false
	}
	return res
}

func buildReport(in Input, comp catalog.Component, current int, present sets.Set[string]) ViolationReport {
	bounds := in.Resolver.ConstraintsOf(comp.ID)
	r := ViolationReport{
		ComponentID:              comp.ID,
		ServiceID:                comp.ServiceID,
		Current:                  current,
		Min:                      bounds.Min,
		Max:                      bounds.Max,
		IsBelowMin:               bounds.Min > 0 && current < bounds.Min,
		IsAboveMax:               bounds.Max != nil && current > *bounds.Max,
		UnmetServiceDependencies: make([]string, 0),
	}

	deps, err := in.Resolver.DependenciesOf(comp.ID)
	if err != nil {
		r.ConfigurationError = err.Error()
	}
	for _, dep := range deps {
		if !present.Has(dep) {
			r.UnmetServiceDependencies = append(r.UnmetServiceDependencies, dep)
		}
	}
	return r
}

// isLicensed treats services without license terms as accepted
func isLicensed(in Input, serviceID string) bool {
	svc, ok := in.Catalog.Service(serviceID)
	if !ok {
		return false
	}
	switch svc.License {
	case catalog.LicenseAbsent, catalog.LicenseAccepted, "":
		return true
	}
	return in.Licensed != nil && in.Licensed.Has(serviceID)
}

func hasTarget(in Input) bool {
	for _, e := range in.Edges.Edges() {
		if in.Scope.Contains(e.HostID, e.ComponentID) {
			return true
		}
	}
	return false
}

// IsValid reports whether the mapping may be saved
func (r *Result) IsValid() bool {
	return r.Valid
}

// Violation returns the report of a component. Components of services that
// are not present have no report.
func (r *Result) Violation(componentID string) (ViolationReport, bool) {
	i, ok := r.reports[componentID]
	if !ok {
		return ViolationReport{}, false
	}
	return r.Reports[i], true
}

// DisableReason returns why a pair is disabled, or ReasonNone
func (r *Result) DisableReason(hostID, componentID string) DisableReason {
	return r.disabled[mapping.Edge{HostID: hostID, ComponentID: componentID}]
}

// RequiredServices returns the sorted services that present components depend
// on but that are not on the cluster yet
func (r *Result) RequiredServices() []string {
	required := sets.New[string]()
	for _, rep := range r.Reports {
		required.Insert(rep.UnmetServiceDependencies...)
	}
	return sets.List(required)
}

// Errors returns human-readable messages for everything that blocks saving
func (r *Result) Errors() []string {
	var msgs []string
	for _, rep := range r.Reports {
		if rep.ConfigurationError != "" {
			msgs = append(msgs, rep.ConfigurationError)
		}
		if rep.IsBelowMin {
			msgs = append(msgs, fmt.Sprintf("component %s needs at least %d host(s), has %d", rep.ComponentID, rep.Min, rep.Current))
		}
		for _, dep := range rep.UnmetServiceDependencies {
			msgs = append(msgs, fmt.Sprintf("component %s requires service %s", rep.ComponentID, dep))
		}
	}
	if r.MissingTarget {
		msgs = append(msgs, "action requires at least one target host")
	}
	return msgs
}

// Warnings returns messages for states that do not block saving
func (r *Result) Warnings() []string {
	var msgs []string
	for _, rep := range r.Reports {
		if rep.IsAboveMax {
			msgs = append(msgs, fmt.Sprintf("component %s allows at most %d host(s), has %d", rep.ComponentID, *rep.Max, rep.Current))
		}
	}
	return msgs
}
