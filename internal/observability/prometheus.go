// Package observability exposes driver counters on a Prometheus-
// compatible text endpoint. Collectors return fully formatted metric
// lines so subsystems can register without a dependency on a metrics
// client library.
package observability

import (
	"fmt"
	"net/http"
	"sync"
)

var (
	mu         sync.RWMutex
	collectors []func() []string
)

// RegisterCollector adds a collector whose returned lines are emitted on
// every /metrics scrape.
func RegisterCollector(f func() []string) {
	if f == nil {
		return
	}
	mu.Lock()
	collectors = append(collectors, f)
	mu.Unlock()
}

// SetupPrometheus registers the /metrics handler on mux.
func SetupPrometheus(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		mu.RLock()
		defer mu.RUnlock()
		for _, f := range collectors {
			for _, line := range f() {
				if line == "" {
					continue
				}
				fmt.Fprintln(w, line)
			}
		}
	})
}
