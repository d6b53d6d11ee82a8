package constraints

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

// serviceGraph is the service dependsOn graph of a catalog
type serviceGraph struct {
	order []string            // services in catalog order
	deps  map[string][]string // service -> services it depends on
}

func newServiceGraph(cat *catalog.Catalog) *serviceGraph {
	g := &serviceGraph{deps: make(map[string][]string)}
	for _, svc := range cat.Services() {
		g.order = append(g.order, svc.ID)
		g.deps[svc.ID] = svc.DependsOn
	}
	return g
}

func (g *serviceGraph) has(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// CycleError reports a service that (indirectly) depends on itself
type CycleError struct {
	// Path starts and ends with the same service
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular service dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrDependencyCycle
}

// detectCycles performs DFS cycle detection over the whole graph and maps
// every service that sits on a cycle to the first cycle found through it
func (g *serviceGraph) detectCycles() map[string]*CycleError {
	onCycle := make(map[string]*CycleError)
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	var path []string

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dep := range g.deps[node] {
			if !g.has(dep) {
				continue
			}
			if !visited[dep] {
				visit(dep)
			} else if recStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				cerr := &CycleError{Path: cycle}
				for _, n := range cycle {
					if _, marked := onCycle[n]; !marked {
						onCycle[n] = cerr
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
	}

	for _, node := range g.order {
		if !visited[node] {
			visit(node)
		}
	}
	return onCycle
}

// topologicalSort orders the given services with Kahn's algorithm so that
// dependencies come before their dependents. Ties are broken by id.
func (g *serviceGraph) topologicalSort(nodes []string) ([]string, error) {
	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}

	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, n := range nodes {
		for _, dep := range g.deps[n] {
			if !inSet[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], n)
			inDegree[n]++
		}
	}

	ready := make([]string, 0)
	for n, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	sorted := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		sorted = append(sorted, current)

		var next []string
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}

	if len(sorted) != len(nodes) {
		return nil, fmt.Errorf("failed to order services: %w", ErrDependencyCycle)
	}
	return sorted, nil
}
