package metrics

import (
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace prefixes every metric name. Empty keeps "facesense".
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem inserts a second name segment, e.g. one per camera.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) { m.subsystem = subsystem }
}

// WithLatencyBuckets replaces the millisecond buckets of every latency histogram.
func WithLatencyBuckets(buckets ...float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithSite labels every series with the site the engine runs at.
func WithSite(site string) Option {
	return WithConstLabel("site", site)
}

// WithConstLabel adds one constant label to every series. Empty values are ignored.
func WithConstLabel(name, value string) Option {
	return func(m *Manager) {
		if value == "" {
			return
		}
		labels := maps.Clone(m.customLabels)
		if labels == nil {
			labels = map[string]string{}
		}
		labels[name] = value
		m.customLabels = labels
	}
}

// WithRefreshInterval sets how often gauges are resampled. Non-positive
// values keep the default.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.refreshInterval = interval
		}
	}
}

// WithDisabled turns recording off; the collectors are still registered.
func WithDisabled() Option {
	return func(m *Manager) { m.enabled = false }
}

// WithPrometheusRegistry registers the collectors on registry instead of the default one.
func WithPrometheusRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
