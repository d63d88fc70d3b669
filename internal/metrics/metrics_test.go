package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorExposesSeries(t *testing.T) {
	c := NewCollector(2 * time.Second)
	c.Ticks.Inc()
	c.Selections.WithLabelValues("selected").Inc()
	c.ObserveDataset(true, 3, 2, 1)

	if got := testutil.ToFloat64(c.TickInterval); got != 2 {
		t.Fatalf("tick interval = %v", got)
	}
	if got := testutil.ToFloat64(c.DatasetSize.WithLabelValues("stops")); got != 3 {
		t.Fatalf("stops = %v", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"transitmap_ticks_total 1", `transitmap_selections_total{result="selected"} 1`, "transitmap_dataset_loaded 1"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}

func TestObserveDatasetFailure(t *testing.T) {
	c := NewCollector(time.Second)
	c.ObserveDataset(false, 0, 0, 0)
	if got := testutil.ToFloat64(c.DatasetLoaded); got != 0 {
		t.Fatalf("loaded = %v", got)
	}
}
