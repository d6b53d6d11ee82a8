// Package session owns the mapping state of one open page or dialog. Each
// session is constructed explicitly, validated on every change and discarded
// on Close; sessions never share state.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/constraints"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/metrics"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

type baselineState struct {
	edges    mapping.Snapshot
	present  sets.Set[string]
	licensed sets.Set[string]
}

type resultKey struct {
	edges uint64
	meta  uint64
}

// Session is a mapping editing session for one cluster. It is safe for
// concurrent use.
type Session struct {
	mu        sync.Mutex
	clusterID string
	state     State
	lastErr   error

	catalog  *catalog.Catalog
	resolver *constraints.Resolver
	set      *mapping.Set
	present  sets.Set[string]
	licensed sets.Set[string]
	baseline baselineState

	scope      *validate.ActionScope
	actionName string

	// meta is bumped on every change that is not an edge change
	meta      uint64
	cached    *validate.Result
	cachedKey resultKey

	observers []func(*validate.Result)
	notifying bool
}

// New creates a session in the Loading state
func New(clusterID string, opts ...Option) *Session {
	s := &Session{
		clusterID: clusterID,
		state:     StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the catalog and saved mapping and moves the session to Ready.
// A failed load leaves the session in Loading so it can be retried.
func (s *Session) Load(ctx context.Context, src Source) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateLoading:
	default:
		s.mu.Unlock()
		return ErrAlreadyLoaded
	}
	s.mu.Unlock()

	cat, base, err := src.Load(ctx, s.clusterID)
	if err != nil {
		return fmt.Errorf("failed to load cluster %s: %w", s.clusterID, err)
	}
	if cat == nil {
		return fmt.Errorf("failed to load cluster %s: %w", s.clusterID, ErrNoCatalog)
	}
	if cat.ClusterID() != s.clusterID {
		return fmt.Errorf("catalog is for cluster %q, expected %q", cat.ClusterID(), s.clusterID)
	}
	if base == nil {
		base = &Baseline{}
	}

	resolver := constraints.NewResolver(cat)
	set := mapping.NewSet(cat)
	present := sets.New[string]()
	if base.Services == nil {
		present.Insert(cat.InstalledServices()...)
	}
	for _, id := range base.Services {
		if !cat.HasService(id) {
			return fmt.Errorf("saved service %q: %w", id, catalog.ErrUnknownEntity)
		}
		present.Insert(id)
	}
	for _, e := range base.Edges.Edges() {
		if err := set.Map(e.HostID, e.ComponentID); err != nil {
			return fmt.Errorf("saved mapping: %w", err)
		}
		// an edge on the backend means its service is installed
		comp, _ := cat.Component(e.ComponentID)
		present.Insert(comp.ServiceID)
	}
	licensed := sets.New[string]()
	for _, id := range base.AcceptedLicenses {
		if !cat.HasService(id) {
			return fmt.Errorf("accepted license %q: %w", id, catalog.ErrUnknownEntity)
		}
		licensed.Insert(id)
	}

	var scope *validate.ActionScope
	if s.actionName != "" {
		action, ok := cat.Action(s.actionName)
		if !ok {
			return fmt.Errorf("action %q: %w", s.actionName, catalog.ErrUnknownEntity)
		}
		scope = validate.ScopeFromAction(action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	if s.state != StateLoading {
		return ErrAlreadyLoaded
	}

	s.catalog = cat
	s.resolver = resolver
	s.set = set
	s.present = present
	s.licensed = licensed
	s.baseline = baselineState{
		edges:    set.Snapshot(),
		present:  present.Clone(),
		licensed: licensed.Clone(),
	}
	if scope != nil {
		s.scope = scope
	}
	s.state = StateReady

	for _, err := range resolver.Errors() {
		klog.ErrorS(err, "Catalog data error", "cluster", s.clusterID)
	}
	klog.V(2).InfoS("Loaded mapping session", "cluster", s.clusterID,
		"hosts", len(cat.Hosts()), "components", len(cat.Components()), "edges", set.Len())
	return nil
}

// guard checks that the session accepts mutations. Callers hold the lock.
func (s *Session) guard() error {
	switch {
	case s.state == StateClosed:
		return ErrClosed
	case s.notifying:
		return ErrValidationInProgress
	case s.state == StateLoading:
		return ErrNotReady
	case s.state == StateSaving:
		return ErrSaveInProgress
	}
	return nil
}

func (s *Session) reject(op string, err error) error {
	metrics.RejectedMutationsTotal.WithLabelValues(s.clusterID, op, reasonLabel(err)).Inc()
	klog.V(2).InfoS("Rejected mapping mutation", "cluster", s.clusterID, "operation", op, "err", err)
	return err
}

// mutate runs fn under the lock and then notifies observers outside of it.
// fn returns whether anything changed.
func (s *Session) mutate(op string, check func() error, fn func() (bool, error)) error {
	s.mu.Lock()
	if err := check(); err != nil {
		s.mu.Unlock()
		return s.reject(op, err)
	}
	changed, err := fn()
	if err != nil {
		s.mu.Unlock()
		return s.reject(op, err)
	}
	if !changed || len(s.observers) == 0 {
		s.mu.Unlock()
		return nil
	}

	res := s.resultLocked()
	observers := slices.Clone(s.observers)
	s.notifying = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.notifying = false
		s.mu.Unlock()
	}()
	for _, fn := range observers {
		fn(res)
	}
	return nil
}

func (s *Session) requireHost(hostID string) (catalog.Host, error) {
	h, ok := s.catalog.Host(hostID)
	if !ok {
		return h, fmt.Errorf("host %q: %w", hostID, catalog.ErrUnknownEntity)
	}
	return h, nil
}

func (s *Session) requireComponent(componentID string) (catalog.Component, error) {
	c, ok := s.catalog.Component(componentID)
	if !ok {
		return c, fmt.Errorf("component %q: %w", componentID, catalog.ErrUnknownEntity)
	}
	return c, nil
}

// Map assigns a component to a host. Pairs with a disable reason and
// components of services that are not present are refused.
func (s *Session) Map(hostID, componentID string) error {
	return s.mutate("map", s.guard, func() (bool, error) {
		if _, err := s.requireHost(hostID); err != nil {
			return false, err
		}
		comp, err := s.requireComponent(componentID)
		if err != nil {
			return false, err
		}
		if s.set.Has(hostID, componentID) {
			return false, nil
		}
		if !s.present.Has(comp.ServiceID) {
			return false, fmt.Errorf("%s (service %s): %w", componentID, comp.ServiceID, ErrServiceNotPresent)
		}
		if reason := s.resultLocked().DisableReason(hostID, componentID); reason != validate.ReasonNone {
			return false, &DisabledError{HostID: hostID, ComponentID: componentID, Reason: reason}
		}
		return true, s.set.Map(hostID, componentID)
	})
}

// Unmap removes a component from a host
func (s *Session) Unmap(hostID, componentID string) error {
	return s.mutate("unmap", s.guard, func() (bool, error) {
		if _, err := s.requireHost(hostID); err != nil {
			return false, err
		}
		if _, err := s.requireComponent(componentID); err != nil {
			return false, err
		}
		if !s.set.Has(hostID, componentID) {
			return false, nil
		}
		if reason := s.resultLocked().DisableReason(hostID, componentID); reason != validate.ReasonNone {
			return false, &DisabledError{HostID: hostID, ComponentID: componentID, Reason: reason}
		}
		s.set.Unmap(hostID, componentID)
		return true, nil
	})
}

// UnmapAllForHost removes every enabled edge of a host and returns how many were removed.
// Edges whose control is disabled stay in place.
func (s *Session) UnmapAllForHost(hostID string) (int, error) {
	removed := 0
	err := s.mutate("unmap-host", s.guard, func() (bool, error) {
		if _, err := s.requireHost(hostID); err != nil {
			return false, err
		}
		res := s.resultLocked()
		for _, compID := range s.set.ComponentsOf(hostID) {
			if res.DisableReason(hostID, compID) != validate.ReasonNone {
				continue
			}
			s.set.Unmap(hostID, compID)
			removed++
		}
		return removed > 0, nil
	})
	return removed, err
}

// AddService puts a service on the cluster so its components can be mapped.
// It returns the services that were added, in install order.
func (s *Session) AddService(serviceID string, opts ...AddOption) ([]string, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	var added []string
	err := s.mutate("add-service", s.guard, func() (bool, error) {
		if !s.catalog.HasService(serviceID) {
			return false, fmt.Errorf("service %q: %w", serviceID, catalog.ErrUnknownEntity)
		}
		if s.present.Has(serviceID) {
			return false, nil
		}

		toAdd := []string{serviceID}
		if o.withDependencies {
			order, err := s.resolver.InstallOrder([]string{serviceID})
			if err != nil {
				return false, err
			}
			toAdd = toAdd[:0]
			for _, id := range order {
				if !s.present.Has(id) {
					toAdd = append(toAdd, id)
				}
			}
		}

		for _, id := range toAdd {
			if !s.isLicensedLocked(id) {
				return false, fmt.Errorf("service %s: %w", id, ErrLicenseNotAccepted)
			}
		}
		s.present.Insert(toAdd...)
		s.meta++
		added = toAdd
		return true, nil
	})
	return added, err
}

// RemoveService takes a service off the cluster together with every edge of
// its components. It returns the number of removed edges.
func (s *Session) RemoveService(serviceID string) (int, error) {
	removed := 0
	err := s.mutate("remove-service", s.guard, func() (bool, error) {
		if !s.catalog.HasService(serviceID) {
			return false, fmt.Errorf("service %q: %w", serviceID, catalog.ErrUnknownEntity)
		}
		if !s.present.Has(serviceID) {
			return false, nil
		}
		for _, comp := range s.catalog.ComponentsOf(serviceID) {
			removed += s.set.UnmapAllForComponent(comp.ID)
		}
		s.present.Delete(serviceID)
		s.meta++
		return true, nil
	})
	return removed, err
}

// AcceptLicense records that the user accepted a service's license. The
// acceptance lives in the session until it is saved, reset or closed.
func (s *Session) AcceptLicense(serviceID string) error {
	return s.mutate("accept-license", s.guard, func() (bool, error) {
		if !s.catalog.HasService(serviceID) {
			return false, fmt.Errorf("service %q: %w", serviceID, catalog.ErrUnknownEntity)
		}
		if s.isLicensedLocked(serviceID) {
			return false, nil
		}
		s.licensed.Insert(serviceID)
		s.meta++
		return true, nil
	})
}

func (s *Session) isLicensedLocked(serviceID string) bool {
	svc, _ := s.catalog.Service(serviceID)
	if svc.License != catalog.LicenseUnaccepted {
		return true
	}
	return s.licensed.Has(serviceID)
}

// Reset discards every edit since the last load or save, including licenses
// accepted in this session. A session in the Error state returns to Ready.
func (s *Session) Reset() error {
	return s.mutate("reset", s.guard, func() (bool, error) {
		s.set.Restore(s.baseline.edges)
		s.present = s.baseline.present.Clone()
		s.licensed = s.baseline.licensed.Clone()
		s.meta++
		s.state = StateReady
		s.lastErr = nil
		return true, nil
	})
}

// SetMaintenanceMode applies a maintenance-mode change pushed from outside
// the session. It is accepted in every state except Loading and Closed.
func (s *Session) SetMaintenanceMode(hostID string, mode catalog.MaintenanceMode) error {
	check := func() error {
		switch s.state {
		case StateClosed:
			return ErrClosed
		case StateLoading:
			return ErrNotReady
		}
		return nil
	}
	return s.mutate("maintenance", check, func() (bool, error) {
		updated, err := s.catalog.WithMaintenanceMode(hostID, mode)
		if err != nil {
			return false, err
		}
		s.catalog = updated
		s.meta++
		klog.V(2).InfoS("Host maintenance mode changed", "cluster", s.clusterID, "host", hostID, "mode", mode)
		return true, nil
	})
}

// OnChange registers an observer called with the new result after every
// change. Observers must not mutate the session.
func (s *Session) OnChange(fn func(*validate.Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.observers = append(s.observers, fn)
}

// resultLocked returns the memoized validation result. Callers hold the lock.
func (s *Session) resultLocked() *validate.Result {
	key := resultKey{edges: s.set.Version(), meta: s.meta}
	if s.cached != nil && s.cachedKey == key {
		return s.cached
	}

	res := validate.Validate(validate.Input{
		Catalog:  s.catalog,
		Resolver: s.resolver,
		Edges:    s.set.Snapshot(),
		Present:  s.present.Clone(),
		Licensed: s.licensed.Clone(),
		Scope:    s.scope,
	})
	s.cached = res
	s.cachedKey = key

	metrics.ValidationsTotal.WithLabelValues(s.clusterID, metrics.ResultLabel(res.IsValid(), "valid", "invalid")).Inc()
	metrics.MappedEdges.WithLabelValues(s.clusterID).Set(float64(s.set.Len()))
	klog.V(4).InfoS("Validated mapping", "cluster", s.clusterID, "valid", res.IsValid(), "edges", s.set.Len())
	return res
}

// Result returns the validation result of the working mapping, or nil before load.
// The result is shared and must be treated as read-only.
func (s *Session) Result() *validate.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return nil
	}
	return s.resultLocked()
}

// IsValid reports whether the working mapping may be saved
func (s *Session) IsValid() bool {
	res := s.Result()
	return res != nil && res.IsValid()
}

// RequiredServices lists services that mapped components need but that are not present
func (s *Session) RequiredServices() []string {
	res := s.Result()
	if res == nil {
		return nil
	}
	return res.RequiredServices()
}

// HasChanges reports whether the session differs from the last saved state
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return false
	}
	return diff.HasChanges(s.baseline.edges, s.set.Snapshot()) ||
		!s.present.Equal(s.baseline.present) ||
		!s.licensed.Equal(s.baseline.licensed)
}

// Operations returns the edge operations a save would send
func (s *Session) Operations() []diff.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return nil
	}
	return diff.Compute(s.baseline.edges, s.set.Snapshot())
}

func (s *Session) requestLocked(state baselineState) *SaveRequest {
	return &SaveRequest{
		ClusterID:        s.clusterID,
		Operations:       diff.Compute(s.baseline.edges, state.edges),
		Edges:            diff.Replacement(state.edges),
		Services:         sets.List(state.present),
		AcceptedLicenses: sets.List(state.licensed),
	}
}

// Draft returns the save payload of the working mapping without validating
// it, for callers that keep unfinished work such as an edited mapping file.
// It returns nil before the session is loaded.
func (s *Session) Draft() *SaveRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return nil
	}
	return s.requestLocked(baselineState{edges: s.set.Snapshot(), present: s.present, licensed: s.licensed})
}

// Save validates the working mapping and hands it to the saver. Only one save
// runs at a time. On success the saved state becomes the new baseline; on
// failure the session enters the Error state and keeps its edits.
func (s *Session) Save(ctx context.Context, saver Saver) error {
	s.mu.Lock()
	if err := s.guard(); err != nil {
		s.mu.Unlock()
		return s.reject("save", err)
	}
	res := s.resultLocked()
	if !res.IsValid() {
		s.mu.Unlock()
		return s.reject("save", &InvalidMappingError{Problems: res.Errors()})
	}

	pending := baselineState{
		edges:    s.set.Snapshot(),
		present:  s.present.Clone(),
		licensed: s.licensed.Clone(),
	}
	req := s.requestLocked(pending)
	s.state = StateSaving
	s.mu.Unlock()

	klog.V(2).InfoS("Saving mapping", "cluster", s.clusterID, "operations", len(req.Operations), "edges", len(req.Edges))
	start := time.Now()
	err := saver.Save(ctx, req)
	metrics.SaveDurationSeconds.WithLabelValues(s.clusterID).Observe(time.Since(start).Seconds())
	metrics.SavesTotal.WithLabelValues(s.clusterID, metrics.ResultLabel(err == nil, "success", "failure")).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		if err != nil {
			return &SaveError{Err: err}
		}
		return nil
	}
	if err != nil {
		s.state = StateError
		s.lastErr = &SaveError{Err: err}
		klog.ErrorS(err, "Failed to save mapping", "cluster", s.clusterID)
		return s.lastErr
	}

	s.baseline = pending
	s.state = StateReady
	s.lastErr = nil
	klog.InfoS("Saved mapping", "cluster", s.clusterID, "operations", len(req.Operations))
	return nil
}

// Close ends the session. Further operations return ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.observers = nil
	s.cached = nil
	klog.V(2).InfoS("Closed mapping session", "cluster", s.clusterID)
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that put the session into the Error state
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClusterID returns the cluster this session edits
func (s *Session) ClusterID() string {
	return s.clusterID
}

// Catalog returns the loaded catalog, or nil before load
func (s *Session) Catalog() *catalog.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Resolver returns the constraint resolver, or nil before load
func (s *Session) Resolver() *constraints.Resolver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver
}

// Snapshot returns the working mapping
func (s *Session) Snapshot() mapping.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return mapping.Snapshot{}
	}
	return s.set.Snapshot()
}

// Baseline returns the last saved mapping
func (s *Session) Baseline() mapping.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.edges
}

// PresentServices returns the sorted services currently on the cluster
func (s *Session) PresentServices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sets.List(s.present)
}

// AcceptedLicenses returns the sorted services whose license was accepted in this session
func (s *Session) AcceptedLicenses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sets.List(s.licensed)
}
