package session

import (
	"context"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

// State is the lifecycle state of a session
type State int

const (
	StateLoading State = iota
	StateReady
	StateSaving
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StateSaving:
		return "Saving"
	case StateError:
		return "Error"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Baseline is the last saved state of a cluster's mapping
type Baseline struct {
	Edges mapping.Snapshot
	// Services present on the cluster; nil means the catalog's installed services
	Services []string
	// AcceptedLicenses lists services whose license was accepted outside the catalog
	AcceptedLicenses []string
}

// Source loads the catalog and saved mapping of a cluster
type Source interface {
	Load(ctx context.Context, clusterID string) (*catalog.Catalog, *Baseline, error)
}

// SaveRequest is the payload handed to a Saver
type SaveRequest struct {
	ClusterID  string           `json:"cluster"`
	Operations []diff.Operation `json:"operations"`
	// Edges is the full working mapping, for backends that replace instead of patching
	Edges            []mapping.Edge `json:"edges"`
	Services         []string       `json:"services"`
	AcceptedLicenses []string       `json:"acceptedLicenses"`
}

// Saver persists a mapping
type Saver interface {
	Save(ctx context.Context, req *SaveRequest) error
}

// Option configures a session
type Option func(*Session)

// WithActionScope validates the session against an action's allow-list
func WithActionScope(scope *validate.ActionScope) Option {
	return func(s *Session) {
		s.scope = scope
	}
}

// WithAction resolves a named action definition from the catalog at load time
func WithAction(name string) Option {
	return func(s *Session) {
		s.actionName = name
	}
}

// AddOption configures AddService
type AddOption func(*addOptions)

type addOptions struct {
	withDependencies bool
}

// WithDependencies also adds every missing service the added service depends on
func WithDependencies() AddOption {
	return func(o *addOptions) {
		o.withDependencies = true
	}
}
