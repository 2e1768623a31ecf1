package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounters(reg)
	if c.Resolutions == nil || c.ManifestFetches == nil {
		t.Fatal("expected all counters to be initialized")
	}
}

func TestRecordResolution(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounters(reg)
	c.RecordResolution(OutcomeLive)
	c.RecordResolution(OutcomeLive)
	c.RecordResolution(OutcomeFailed)

	if val := testutil.ToFloat64(c.Resolutions.WithLabelValues(OutcomeLive)); val != 2 {
		t.Errorf("expected 2 live, got %f", val)
	}
	if val := testutil.ToFloat64(c.Resolutions.WithLabelValues(OutcomeFailed)); val != 1 {
		t.Errorf("expected 1 failed, got %f", val)
	}
}

func TestRecordFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounters(reg)
	c.RecordFetch("v2")

	if val := testutil.ToFloat64(c.ManifestFetches.WithLabelValues("v2")); val != 1 {
		t.Errorf("expected 1, got %f", val)
	}
}

func TestNilCounters(t *testing.T) {
	var c *Counters
	c.RecordResolution(OutcomeCached)
	c.RecordFetch("v2.2")
}

func TestWriteFile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCounters(reg)
	c.RecordResolution(OutcomeOverride)

	path := filepath.Join(t.TempDir(), "resolver.prom")
	if err := WriteFile(path, reg); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `imagepin_resolutions_total{outcome="override"} 1`) {
		t.Errorf("unexpected metrics file:\n%s", data)
	}
}

func TestWriteFile_bad_path(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCounters(reg)

	err := WriteFile(filepath.Join(t.TempDir(), "missing", "x.prom"), reg)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
