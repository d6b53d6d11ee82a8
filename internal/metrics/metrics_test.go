package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSavesTotal(t *testing.T) {
	SavesTotal.Reset()
	SavesTotal.With(prometheus.Labels{"cluster": "c1", "result": "success"}).Inc()
	SavesTotal.With(prometheus.Labels{"cluster": "c1", "result": "failure"}).Inc()
	SavesTotal.With(prometheus.Labels{"cluster": "c1", "result": "success"}).Inc()

	want := `
		# HELP hostmap_saves_total Number of mapping save attempts
		# TYPE hostmap_saves_total counter
		hostmap_saves_total{cluster="c1",result="failure"} 1
		hostmap_saves_total{cluster="c1",result="success"} 2
	`
	if err := testutil.CollectAndCompare(SavesTotal, strings.NewReader(want)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestWriteText(t *testing.T) {
	MappedEdges.Reset()
	MappedEdges.WithLabelValues("c1").Set(4)

	var buf bytes.Buffer
	if err := WriteText(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `hostmap_mapped_edges{cluster="c1"} 4`) {
		t.Errorf("expected gauge in output, got:\n%s", buf.String())
	}
}

func TestResultLabel(t *testing.T) {
	if ResultLabel(true, "valid", "invalid") != "valid" {
		t.Error("expected valid")
	}
	if ResultLabel(false, "valid", "invalid") != "invalid" {
		t.Error("expected invalid")
	}
}
