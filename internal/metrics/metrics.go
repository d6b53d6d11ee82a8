// Package metrics contains the prometheus metrics emitted by mapping sessions.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every hostmap metric
var Registry = prometheus.NewRegistry()

var (
	// ValidationsTotal counts validation passes, labelled by outcome (valid, invalid).
	ValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hostmap_validations_total",
		Help: "Number of mapping validation passes",
	}, []string{"cluster", "result"})

	// RejectedMutationsTotal counts mutations refused by a session.
	RejectedMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hostmap_rejected_mutations_total",
		Help: "Number of session mutations that were rejected",
	}, []string{"cluster", "operation", "reason"})

	// SavesTotal counts save attempts by result (success, failure).
	SavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hostmap_saves_total",
		Help: "Number of mapping save attempts",
	}, []string{"cluster", "result"})

	// MappedEdges tracks the size of the working mapping.
	MappedEdges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hostmap_mapped_edges",
		Help: "Number of host/component edges in the working mapping",
	}, []string{"cluster"})

	// SaveDurationSeconds tracks how long a save takes against the backend.
	SaveDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostmap_save_duration_seconds",
		Help:    "Duration of mapping saves in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"cluster"})
)

func init() {
	Registry.MustRegister(
		ValidationsTotal,
		RejectedMutationsTotal,
		SavesTotal,
		MappedEdges,
		SaveDurationSeconds,
	)
}

// ResultLabel maps a boolean outcome to a label value
func ResultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// WriteText writes every gathered metric in the prometheus text exposition format
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
