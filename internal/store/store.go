// Package store keeps the saved mapping of a cluster, with revision history,
// in a ConfigMap.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"

	"github.com/bobbyrathoree/hostmap/internal/mapping"
)

const (
	// LabelManagedBy identifies hostmap-managed resources
	LabelManagedBy = "app.kubernetes.io/managed-by"
	// LabelCluster identifies the mapped cluster
	LabelCluster = "hostmap.dev/cluster"
	// AnnotationSaveTime stores when the latest revision was saved
	AnnotationSaveTime = "hostmap.dev/save-time"
	// AnnotationRevision stores the latest revision number
	AnnotationRevision = "hostmap.dev/revision"

	revisionsKey = "revisions"

	// MaxRevisionHistory is how many revisions to keep
	MaxRevisionHistory = 10
)

// Revision is one saved mapping
type Revision struct {
	Revision         int            `json:"revision"`
	Timestamp        time.Time      `json:"timestamp"`
	Edges            []mapping.Edge `json:"edges"`
	Services         []string       `json:"services"`
	AcceptedLicenses []string       `json:"acceptedLicenses,omitempty"`
	Added            int            `json:"added"`
	Removed          int            `json:"removed"`
	// RolledBackFrom is set when the revision restores an older one
	RolledBackFrom int `json:"rolledBackFrom,omitempty"`
}

// Snapshot returns the revision's edges
func (r *Revision) Snapshot() mapping.Snapshot {
	return mapping.NewSnapshot(r.Edges)
}

// Store handles mapping revision persistence using ConfigMaps
type Store struct {
	client    kubernetes.Interface
	namespace string
	clusterID string
}

// NewStore creates a new store for a cluster
func NewStore(client kubernetes.Interface, namespace, clusterID string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		clusterID: clusterID,
	}
}

// ClusterID returns the cluster the store belongs to
func (s *Store) ClusterID() string {
	return s.clusterID
}

// ConfigMapName returns the name of the ConfigMap storing a cluster's revisions
func ConfigMapName(clusterID string) string {
	return fmt.Sprintf("hostmap-%s", clusterID)
}

func (s *Store) configMapName() string {
	return ConfigMapName(s.clusterID)
}

// Save stores a new revision and returns its number. The revision number and
// timestamp of rev are assigned by the store.
func (s *Store) Save(ctx context.Context, rev Revision) (int, error) {
	var saved int
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, revisions, err := s.load(ctx)
		if err != nil {
			return err
		}

		rev.Revision = 1
		if len(revisions) > 0 {
			rev.Revision = revisions[len(revisions)-1].Revision + 1
		}
		rev.Timestamp = time.Now().UTC()
		revisions = append(revisions, rev)
		if len(revisions) > MaxRevisionHistory {
			revisions = revisions[len(revisions)-MaxRevisionHistory:]
		}

		if err := s.write(ctx, cm, revisions); err != nil {
			return err
		}
		saved = rev.Revision
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save revision: %w", err)
	}

	klog.V(2).InfoS("Saved mapping revision", "cluster", s.clusterID, "namespace", s.namespace, "revision", saved)
	return saved, nil
}

// List returns all stored revisions, sorted by revision
func (s *Store) List(ctx context.Context) ([]Revision, error) {
	_, revisions, err := s.load(ctx)
	return revisions, err
}

// Get returns a specific revision
func (s *Store) Get(ctx context.Context, revision int) (*Revision, error) {
	revisions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range revisions {
		if r.Revision == revision {
			return &r, nil
		}
	}

	return nil, fmt.Errorf("revision %d not found", revision)
}

// GetLatest returns the most recent revision, or nil when nothing was saved
func (s *Store) GetLatest(ctx context.Context) (*Revision, error) {
	revisions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, nil
	}
	return &revisions[len(revisions)-1], nil
}

// GetPrevious returns the revision before the current one
func (s *Store) GetPrevious(ctx context.Context) (*Revision, error) {
	revisions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(revisions) < 2 {
		return nil, fmt.Errorf("no previous revision available (only %d revision(s) exist)", len(revisions))
	}

	return &revisions[len(revisions)-2], nil
}

// Delete removes all revision history of the cluster
func (s *Store) Delete(ctx context.Context) error {
	err := s.client.CoreV1().ConfigMaps(s.namespace).Delete(ctx, s.configMapName(), metav1.DeleteOptions{})
	if errors.IsNotFound(err) {
		return nil
	}
	return err
}

// load reads the ConfigMap and its revisions. A missing ConfigMap yields nil for both.
func (s *Store) load(ctx context.Context) (*corev1.ConfigMap, []Revision, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.configMapName(), metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to get mapping ConfigMap: %w", err)
	}

	data, ok := cm.Data[revisionsKey]
	if !ok {
		return cm, nil, nil
	}

	var revisions []Revision
	if err := json.Unmarshal([]byte(data), &revisions); err != nil {
		return nil, nil, fmt.Errorf("failed to parse revisions: %w", err)
	}

	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Revision < revisions[j].Revision
	})
	return cm, revisions, nil
}

// write persists revisions, creating the ConfigMap if existing is nil
func (s *Store) write(ctx context.Context, existing *corev1.ConfigMap, revisions []Revision) error {
	data, err := json.Marshal(revisions)
	if err != nil {
		return fmt.Errorf("failed to serialize revisions: %w", err)
	}
	latest := revisions[len(revisions)-1]
	annotations := map[string]string{
		AnnotationSaveTime: latest.Timestamp.Format(time.RFC3339),
		AnnotationRevision: strconv.Itoa(latest.Revision),
	}

	if existing == nil {
		cm := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.configMapName(),
				Namespace: s.namespace,
				Labels: map[string]string{
					LabelManagedBy: "hostmap",
					LabelCluster:   s.clusterID,
				},
				Annotations: annotations,
			},
			Data: map[string]string{revisionsKey: string(data)},
		}
		_, err = s.client.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
		return err
	}

	updated := existing.DeepCopy()
	if updated.Data == nil {
		updated.Data = map[string]string{}
	}
	if updated.Annotations == nil {
		updated.Annotations = map[string]string{}
	}
	updated.Data[revisionsKey] = string(data)
	for k, v := range annotations {
		updated.Annotations[k] = v
	}
	_, err = s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, updated, metav1.UpdateOptions{})
	return err
}

// FormatRevision formats a revision number for display
func FormatRevision(revision int) string {
	return "#" + strconv.Itoa(revision)
}
