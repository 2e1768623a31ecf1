// Package metrics counts resolution outcomes and manifest fetches. A run can
// dump the counters in Prometheus text format for a textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcomes.
const (
	OutcomeOverride = "override"
	OutcomeCached   = "cached"
	OutcomeLive     = "live"
	OutcomeFailed   = "failed"
)

// Counters holds all resolver Prometheus metrics. A nil *Counters records
// nothing.
type Counters struct {
	Resolutions     *prometheus.CounterVec
	ManifestFetches *prometheus.CounterVec
}

// NewCounters creates and registers the counters with reg.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagepin_resolutions_total",
			Help: "Tag references resolved, by outcome.",
		}, []string{"outcome"}),
		ManifestFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagepin_manifest_fetches_total",
			Help: "Manifests fetched from a registry, by schema version.",
		}, []string{"schema"}),
	}

	reg.MustRegister(c.Resolutions, c.ManifestFetches)

	return c
}

// RecordResolution increments the resolutions counter for outcome.
func (c *Counters) RecordResolution(outcome string) {
	if c == nil {
		return
	}

	c.Resolutions.WithLabelValues(outcome).Inc()
}

// RecordFetch increments the manifest fetch counter for schema.
func (c *Counters) RecordFetch(schema string) {
	if c == nil {
		return
	}

	c.ManifestFetches.WithLabelValues(schema).Inc()
}

// WriteFile writes every metric gathered by g to path.
func WriteFile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}

	return nil
}
