package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/ptr"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

type fakeSource struct {
	topology *catalog.Topology
	baseline *Baseline
	err      error
}

func (f *fakeSource) Load(_ context.Context, _ string) (*catalog.Catalog, *Baseline, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	cat, err := catalog.New(f.topology)
	if err != nil {
		return nil, nil, err
	}
	return cat, f.baseline, nil
}

type fakeSaver struct {
	mu       sync.Mutex
	requests []*SaveRequest
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeSaver) Save(_ context.Context, req *SaveRequest) error {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func testTopology() *catalog.Topology {
	return &catalog.Topology{
		Metadata: catalog.Metadata{Cluster: "c1"},
		Hosts: []catalog.Host{
			{ID: "H1"},
			{ID: "H2"},
			{ID: "H3", MaintenanceMode: catalog.MaintenanceOn, MaintenanceModeAvailable: true},
		},
		Services: []catalog.Service{
			{ID: "zookeeper", Installed: true, Components: []catalog.Component{
				{ID: "zk", Constraints: &catalog.Constraints{Min: 1, Max: ptr.To(3)}},
			}},
			{ID: "hdfs", Installed: true, DependsOn: []string{"zookeeper"}, Components: []catalog.Component{
				{ID: "namenode", Constraints: &catalog.Constraints{Min: 1, Max: ptr.To(1)}},
				{ID: "datanode"},
			}},
			{ID: "yarn", DependsOn: []string{"hdfs"}, Components: []catalog.Component{{ID: "rm"}}},
			{ID: "spark", License: catalog.LicenseUnaccepted, DependsOn: []string{"yarn"}, Components: []catalog.Component{
				{ID: "history", RequiresServices: []string{"hive"}},
			}},
			{ID: "hive", License: catalog.LicenseUnaccepted, Components: []catalog.Component{{ID: "metastore"}}},
		},
	}
}

func edges(pairs ...string) mapping.Snapshot {
	var result []mapping.Edge
	for i := 0; i+1 < len(pairs); i += 2 {
		result = append(result, mapping.Edge{HostID: pairs[i], ComponentID: pairs[i+1]})
	}
	return mapping.NewSnapshot(result)
}

func loadSession(t *testing.T, base *Baseline, opts ...Option) *Session {
	t.Helper()
	s := New("c1", opts...)
	if err := s.Load(context.Background(), &fakeSource{topology: testTopology(), baseline: base}); err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSession_Load(t *testing.T) {
	s := New("c1")
	if s.State() != StateLoading {
		t.Fatalf("expected Loading, got %s", s.State())
	}
	if err := s.Map("H1", "zk"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if s.Result() != nil {
		t.Error("expected nil result before load")
	}

	if err := s.Load(context.Background(), &fakeSource{err: errors.New("boom")}); err == nil {
		t.Fatal("expected load error")
	}
	if s.State() != StateLoading {
		t.Errorf("expected failed load to stay in Loading, got %s", s.State())
	}

	if err := s.Load(context.Background(), &fakeSource{topology: testTopology()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
	if diff := cmp.Diff([]string{"hdfs", "zookeeper"}, s.PresentServices()); diff != "" {
		t.Errorf("present services mismatch (-want +got):\n%s", diff)
	}
	if err := s.Load(context.Background(), &fakeSource{topology: testTopology()}); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("expected ErrAlreadyLoaded, got %v", err)
	}
}

func TestSession_LoadWrongCluster(t *testing.T) {
	s := New("other")
	if err := s.Load(context.Background(), &fakeSource{topology: testTopology()}); err == nil {
		t.Error("expected error for catalog of another cluster")
	}
}

type emptySource struct{}

func (emptySource) Load(context.Context, string) (*catalog.Catalog, *Baseline, error) {
	return nil, nil, nil
}

func TestSession_LoadWithoutCatalog(t *testing.T) {
	s := New("c1")
	if err := s.Load(context.Background(), emptySource{}); !errors.Is(err, ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
	if s.State() != StateLoading {
		t.Errorf("expected Loading, got %s", s.State())
	}
	if err := s.Map("H1", "zk"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestSession_BelowMinThenValid(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode")})

	res := s.Result()
	rep, _ := res.Violation("zk")
	if !rep.IsBelowMin || s.IsValid() {
		t.Fatalf("expected zk below min and invalid session, got %+v", rep)
	}

	if err := s.Map("H1", "zk"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep, _ = s.Result().Violation("zk")
	if rep.Current != 1 || rep.IsBelowMin {
		t.Errorf("expected current 1 and not below min, got %+v", rep)
	}
	if !s.IsValid() {
		t.Errorf("expected valid session, got %v", s.Result().Errors())
	}
}

func TestSession_MapRefusals(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode", "H1", "zk")})

	var disabled *DisabledError
	err := s.Map("H2", "namenode")
	if !errors.As(err, &disabled) || disabled.Reason != validate.ComponentAtMaxCapacity {
		t.Errorf("expected max capacity refusal, got %v", err)
	}
	if rep, _ := s.Result().Violation("namenode"); rep.Current > 1 {
		t.Errorf("current exceeded max: %d", rep.Current)
	}

	err = s.Map("H3", "datanode")
	if !errors.As(err, &disabled) || disabled.Reason != validate.HostInMaintenanceMode {
		t.Errorf("expected maintenance refusal, got %v", err)
	}

	if err := s.Map("H1", "rm"); !errors.Is(err, ErrServiceNotPresent) {
		t.Errorf("expected ErrServiceNotPresent, got %v", err)
	}
	if err := s.Map("H9", "zk"); !errors.Is(err, catalog.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}

	// mapping an existing edge is a no-op
	if err := s.Map("H1", "namenode"); err != nil {
		t.Errorf("expected idempotent map, got %v", err)
	}
}

func TestSession_MaintenanceBlocksUnmap(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H2", "zk", "H1", "namenode")})

	if err := s.SetMaintenanceMode("H2", catalog.MaintenanceChanging); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var disabled *DisabledError
	if err := s.Unmap("H2", "zk"); !errors.As(err, &disabled) {
		t.Errorf("expected DisabledError, got %v", err)
	}
	if got := s.Result().DisableReason("H2", "namenode"); got != validate.HostInMaintenanceMode {
		t.Errorf("expected maintenance reason, got %q", got)
	}

	if err := s.SetMaintenanceMode("H2", catalog.MaintenanceOff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Unmap("H2", "zk"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	n, err := s.UnmapAllForHost("H1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 edges removed, got %d", n)
	}
}

func TestSession_AddServiceRequiresLicense(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode", "H1", "zk")})

	if _, err := s.AddService("hive"); !errors.Is(err, ErrLicenseNotAccepted) {
		t.Fatalf("expected ErrLicenseNotAccepted, got %v", err)
	}
	if err := s.AcceptLicense("hive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	added, err := s.AddService("hive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"hive"}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_RequiredServicesFlow(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode", "H1", "zk")})

	if err := s.AcceptLicense("spark"); err != nil {
		t.Fatal(err)
	}
	added, err := s.AddService("spark", WithDependencies())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"yarn", "spark"}, added); diff != "" {
		t.Errorf("install order mismatch (-want +got):\n%s", diff)
	}

	if err := s.Map("H2", "history"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"hive"}, s.RequiredServices()); diff != "" {
		t.Errorf("required services mismatch (-want +got):\n%s", diff)
	}
	if s.IsValid() {
		t.Error("expected invalid session until hive is added")
	}

	if err := s.AcceptLicense("hive"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddService("hive"); err != nil {
		t.Fatal(err)
	}
	if len(s.RequiredServices()) != 0 {
		t.Errorf("expected no required services, got %v", s.RequiredServices())
	}
	if !s.IsValid() {
		t.Errorf("expected valid session, got %v", s.Result().Errors())
	}
}

func TestSession_RemoveServiceDropsEdgesAndReports(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode", "H1", "zk", "H2", "datanode", "H1", "datanode")})

	n, err := s.RemoveService("hdfs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 edges removed, got %d", n)
	}
	want := []mapping.Edge{{HostID: "H1", ComponentID: "zk"}}
	if diff := cmp.Diff(want, s.Snapshot().Edges()); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	for _, comp := range []string{"namenode", "datanode"} {
		if _, ok := s.Result().Violation(comp); ok {
			t.Errorf("expected no report for %s", comp)
		}
	}
	if !s.HasChanges() {
		t.Error("expected changes after removing a service")
	}
}

func TestSession_SaveSuccess(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})
	saver := &fakeSaver{}

	if err := s.Map("H2", "zk"); err != nil {
		t.Fatal(err)
	}
	wantOps := []diff.Operation{{Action: diff.ActionAdd, HostID: "H2", ComponentID: "zk"}}
	if diff := cmp.Diff(wantOps, s.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	if err := s.Save(context.Background(), saver); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
	if s.HasChanges() {
		t.Error("expected no changes after save")
	}
	if s.Operations() != nil {
		t.Errorf("expected no operations after save, got %v", s.Operations())
	}

	req := saver.requests[0]
	if diff := cmp.Diff(wantOps, req.Operations); diff != "" {
		t.Errorf("saved operations mismatch (-want +got):\n%s", diff)
	}
	if len(req.Edges) != 3 {
		t.Errorf("expected full replacement of 3 edges, got %d", len(req.Edges))
	}
	if diff := cmp.Diff([]string{"hdfs", "zookeeper"}, req.Services); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_SaveInvalid(t *testing.T) {
	s := loadSession(t, nil)
	saver := &fakeSaver{}

	err := s.Save(context.Background(), saver)
	var invalid *InvalidMappingError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidMappingError, got %v", err)
	}
	if len(invalid.Problems) == 0 {
		t.Error("expected problems to be listed")
	}
	if len(saver.requests) != 0 {
		t.Error("saver must not be called for an invalid mapping")
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}

func TestSession_SaveFailureKeepsEdits(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})
	if err := s.Map("H2", "datanode"); err != nil {
		t.Fatal(err)
	}

	failing := &fakeSaver{err: errors.New("backend unavailable")}
	err := s.Save(context.Background(), failing)
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		t.Fatalf("expected SaveError, got %v", err)
	}
	if s.State() != StateError {
		t.Errorf("expected Error, got %s", s.State())
	}
	if !s.Snapshot().Contains(mapping.Edge{HostID: "H2", ComponentID: "datanode"}) {
		t.Error("expected edits to be kept after failed save")
	}
	if !s.HasChanges() {
		t.Error("expected changes to remain after failed save")
	}

	// edits are still allowed and a retry succeeds
	if err := s.Map("H2", "zk"); err != nil {
		t.Fatalf("unexpected error in Error state: %v", err)
	}
	if err := s.Save(context.Background(), &fakeSaver{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if s.State() != StateReady || s.Err() != nil {
		t.Errorf("expected Ready without error, got %s / %v", s.State(), s.Err())
	}
}

func TestSession_SingleSaveInFlight(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})
	saver := &fakeSaver{block: make(chan struct{}), started: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		done <- s.Save(context.Background(), saver)
	}()
	<-saver.started

	if s.State() != StateSaving {
		t.Errorf("expected Saving, got %s", s.State())
	}
	if err := s.Save(context.Background(), &fakeSaver{}); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("expected ErrSaveInProgress, got %v", err)
	}
	if err := s.Map("H2", "zk"); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("expected mutation to be rejected while saving, got %v", err)
	}

	close(saver.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}

func TestSession_CloseDuringSave(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})
	other := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})
	saver := &fakeSaver{block: make(chan struct{}), started: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		done <- s.Save(context.Background(), saver)
	}()
	<-saver.started
	s.Close()
	close(saver.block)
	<-done

	if s.State() != StateClosed {
		t.Errorf("expected Closed, got %s", s.State())
	}
	if err := s.Map("H2", "zk"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if other.State() != StateReady {
		t.Errorf("expected other session to be unaffected, got %s", other.State())
	}
}

func TestSession_ResetDiscardsLicenses(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "zk", "H1", "namenode")})

	if err := s.AcceptLicense("hive"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddService("hive"); err != nil {
		t.Fatal(err)
	}
	if err := s.Map("H2", "metastore"); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.HasChanges() {
		t.Error("expected no changes after reset")
	}
	if len(s.AcceptedLicenses()) != 0 {
		t.Errorf("expected accepted licenses to be discarded, got %v", s.AcceptedLicenses())
	}
	if _, err := s.AddService("hive"); !errors.Is(err, ErrLicenseNotAccepted) {
		t.Errorf("expected ErrLicenseNotAccepted after reset, got %v", err)
	}
}

func TestSession_OnChange(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode")})

	var results []*validate.Result
	var reentrant error
	s.OnChange(func(res *validate.Result) {
		results = append(results, res)
		reentrant = s.Map("H2", "datanode")
	})

	if err := s.Map("H1", "zk"); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].IsValid() {
		t.Fatalf("expected one valid notification, got %d", len(results))
	}
	if !errors.Is(reentrant, ErrValidationInProgress) {
		t.Errorf("expected ErrValidationInProgress, got %v", reentrant)
	}

	// no-op mutations do not notify
	if err := s.Map("H1", "zk"); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("expected no notification for a no-op, got %d", len(results))
	}
	if err := s.Map("H2", "datanode"); err != nil {
		t.Errorf("expected mutations to work after observers finish, got %v", err)
	}
}

func TestSession_ResultMemoized(t *testing.T) {
	s := loadSession(t, &Baseline{Edges: edges("H1", "namenode")})

	first := s.Result()
	if s.Result() != first {
		t.Error("expected memoized result without changes")
	}
	if err := s.Map("H1", "zk"); err != nil {
		t.Fatal(err)
	}
	if s.Result() == first {
		t.Error("expected a new result after a change")
	}
}

func TestSession_ActionScope(t *testing.T) {
	topo := testTopology()
	topo.Actions = []catalog.ActionDefinition{{
		Name:              "restart-datanodes",
		AllowedComponents: []string{"datanode"},
		AllowedHosts:      map[string][]string{"datanode": {"H2"}},
		RequireTarget:     true,
	}}
	s := New("c1", WithAction("restart-datanodes"))
	if err := s.Load(context.Background(), &fakeSource{topology: topo, baseline: &Baseline{Edges: edges("H1", "zk", "H1", "namenode")}}); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	res := s.Result()
	if !res.MissingTarget || s.IsValid() {
		t.Error("expected missing target")
	}

	var disabled *DisabledError
	if err := s.Map("H1", "datanode"); !errors.As(err, &disabled) || disabled.Reason != validate.ActionDoesNotAllowThisHost {
		t.Errorf("expected host refusal, got %v", err)
	}
	if err := s.Map("H2", "zk"); !errors.As(err, &disabled) || disabled.Reason != validate.ActionDoesNotAllowThisComponent {
		t.Errorf("expected component refusal, got %v", err)
	}
	if err := s.Map("H2", "datanode"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsValid() {
		t.Errorf("expected valid action session, got %v", s.Result().Errors())
	}
}

func TestSession_Isolation(t *testing.T) {
	base := &Baseline{Edges: edges("H1", "zk", "H1", "namenode")}
	a := loadSession(t, base)
	b := loadSession(t, base)

	if err := a.Map("H2", "datanode"); err != nil {
		t.Fatal(err)
	}
	if b.HasChanges() {
		t.Error("expected edits in one session to stay out of another")
	}
	a.Close()
	if err := b.Map("H2", "zk"); err != nil {
		t.Errorf("expected other session to keep working, got %v", err)
	}
}

func TestSession_DraftSkipsValidation(t *testing.T) {
	s := New("c1")
	if s.Draft() != nil {
		t.Fatal("expected no draft before load")
	}

	s = loadSession(t, nil)
	if err := s.Map("H1", "zk"); err != nil {
		t.Fatal(err)
	}
	if s.IsValid() {
		t.Fatal("expected namenode to keep the mapping invalid")
	}

	draft := s.Draft()
	want := []diff.Operation{{Action: diff.ActionAdd, HostID: "H1", ComponentID: "zk"}}
	if diff := cmp.Diff(want, draft.Operations); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hdfs", "zookeeper"}, draft.Services); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}
	if s.State() != StateReady {
		t.Errorf("expected Ready, got %s", s.State())
	}
}
