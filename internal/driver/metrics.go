package driver

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Metrics holds the conductor's lightweight counters. All fields are
// atomics so the data plane and the metrics endpoint never contend.
type Metrics struct {
	publicationsAdded  atomic.Int64
	subscriptionsAdded atomic.Int64
	imagesCreated      atomic.Int64
	imagesClosed       atomic.Int64
	livenessEvictions  atomic.Int64
	flowViolations     atomic.Int64
	activeSessions     atomic.Int64
}

// Snapshot returns the current counter values keyed by metric name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"publications_added_total":  m.publicationsAdded.Load(),
		"subscriptions_added_total": m.subscriptionsAdded.Load(),
		"images_created_total":      m.imagesCreated.Load(),
		"images_closed_total":       m.imagesClosed.Load(),
		"liveness_evictions_total":  m.livenessEvictions.Load(),
		"flow_violations_total":     m.flowViolations.Load(),
		"active_sessions":           m.activeSessions.Load(),
	}
}

// CollectorLines renders the snapshot as Prometheus text lines for the
// observability endpoint.
func (m *Metrics) CollectorLines() []string {
	snap := m.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("aeron_driver_%s %d", k, snap[k]))
	}
	return lines
}
