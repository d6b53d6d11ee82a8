// Package constraints derives the static rules of each component from the
// catalog: how many hosts it may run on and which services it needs.
package constraints

import (
	"errors"
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

var (
	// ErrUnknownComponent is returned for component ids absent from the catalog
	ErrUnknownComponent = errors.New("unknown component")
	// ErrMalformedCatalog marks references to services that do not exist
	ErrMalformedCatalog = errors.New("malformed catalog")
	// ErrDependencyCycle marks services that indirectly depend on themselves
	ErrDependencyCycle = errors.New("circular service dependency")
)

// DataError is a catalog data problem attached to one component
type DataError struct {
	ComponentID string
	Reference   string
	Reason      string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("component %s: %s %q", e.ComponentID, e.Reason, e.Reference)
}

func (e *DataError) Unwrap() error {
	return ErrMalformedCatalog
}

// Bounds is the allowed host count of a component
type Bounds struct {
	Min int
	// Max is nil when unbounded
	Max *int
}

// Unbounded reports whether the bounds have no maximum
func (b Bounds) Unbounded() bool {
	return b.Max == nil
}

// String formats bounds as "min..max", with "*" for unbounded
func (b Bounds) String() string {
	if b.Max == nil {
		return strconv.Itoa(b.Min) + "..*"
	}
	return fmt.Sprintf("%d..%d", b.Min, *b.Max)
}

// Resolver answers static per-component questions about a catalog.
// All answers are computed up front; the resolver is read-only afterwards.
type Resolver struct {
	catalog *catalog.Catalog
	graph   *serviceGraph
	cycles  map[string]*CycleError

	deps map[string][]string
	errs map[string]error
}

// NewResolver builds a resolver. It never fails: data errors are recorded
// against the affected components and reported through ErrorFor and Errors.
func NewResolver(cat *catalog.Catalog) *Resolver {
	g := newServiceGraph(cat)
	r := &Resolver{
		catalog: cat,
		graph:   g,
		cycles:  g.detectCycles(),
		deps:    make(map[string][]string),
		errs:    make(map[string]error),
	}
	for _, comp := range cat.Components() {
		r.resolve(comp)
	}
	return r
}

// resolve computes the transitive service dependencies of one component
func (r *Resolver) resolve(comp catalog.Component) {
	owner, ok := r.catalog.Service(comp.ServiceID)
	if !ok {
		r.deps[comp.ID] = []string{}
		r.errs[comp.ID] = &DataError{ComponentID: comp.ID, Reference: comp.ServiceID, Reason: "owning service does not exist"}
		return
	}

	closure := sets.New[string]()
	var missing []string
	cycle := r.cycles[owner.ID]

	var visit func(id string)
	visit = func(id string) {
		if closure.Has(id) {
			return
		}
		closure.Insert(id)
		if !r.graph.has(id) {
			missing = append(missing, id)
			return
		}
		if c, ok := r.cycles[id]; ok && cycle == nil {
			cycle = c
		}
		for _, dep := range r.graph.deps[id] {
			visit(dep)
		}
	}

	for _, id := range owner.DependsOn {
		visit(id)
	}
	for _, id := range comp.RequiresServices {
		visit(id)
	}
	closure.Delete(owner.ID)
	closure.Delete(missing...)

	r.deps[comp.ID] = sets.List(closure)
	switch {
	case len(missing) > 0:
		r.errs[comp.ID] = &DataError{ComponentID: comp.ID, Reference: missing[0], Reason: "depends on unknown service"}
	case cycle != nil:
		r.errs[comp.ID] = fmt.Errorf("component %s: %w", comp.ID, cycle)
	}
}

// Catalog returns the catalog the resolver was built from
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// DependenciesOf returns the sorted set of services a component depends on.
// For components with catalog data errors the known dependencies are
// returned together with the error.
func (r *Resolver) DependenciesOf(componentID string) ([]string, error) {
	deps, ok := r.deps[componentID]
	if !ok {
		return nil, fmt.Errorf("%q: %w", componentID, ErrUnknownComponent)
	}
	return append([]string{}, deps...), r.errs[componentID]
}

// ConstraintsOf returns the declared bounds of a component, defaulting to 0..unbounded
func (r *Resolver) ConstraintsOf(componentID string) Bounds {
	comp, ok := r.catalog.Component(componentID)
	if !ok || comp.Constraints == nil {
		return Bounds{}
	}
	b := Bounds{Min: comp.Constraints.Min}
	if comp.Constraints.Max != nil {
		max := *comp.Constraints.Max
		b.Max = &max
	}
	return b
}

// ErrorFor returns the catalog data error of a component, if any
func (r *Resolver) ErrorFor(componentID string) error {
	return r.errs[componentID]
}

// Errors returns all component data errors in catalog order
func (r *Resolver) Errors() []error {
	var result []error
	for _, comp := range r.catalog.Components() {
		if err := r.errs[comp.ID]; err != nil {
			result = append(result, err)
		}
	}
	return result
}

// InstallOrder returns the given services plus everything they transitively
// depend on, dependencies first
func (r *Resolver) InstallOrder(serviceIDs []string) ([]string, error) {
	closure := sets.New[string]()
	var visit func(id string) error
	visit = func(id string) error {
		if closure.Has(id) {
			return nil
		}
		if !r.graph.has(id) {
			return fmt.Errorf("service %q: %w", id, catalog.ErrUnknownEntity)
		}
		if c, ok := r.cycles[id]; ok {
			return c
		}
		closure.Insert(id)
		for _, dep := range r.graph.deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range serviceIDs {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return r.graph.topologicalSort(sets.List(closure))
}
