// Package metrics holds the process-wide counters for build drops and query
// outcomes. Counters are registered with the default prometheus registry and
// served on the HTTP server's /metrics endpoint; the build also snapshots
// the drop counters into build_info.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedirectsDroppedCycle = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_redirects_dropped_cycle_total",
		Help: "Redirect chains dropped because they cycled.",
	})
	RedirectsDroppedTooDeep = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_redirects_dropped_too_deep_total",
		Help: "Redirect chains dropped for exceeding the hop bound.",
	})
	RedirectsDroppedUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_redirects_dropped_unresolved_total",
		Help: "Redirect rows whose target title has no page entry.",
	})
	LinksDroppedUnresolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_links_dropped_unresolved_total",
		Help: "Pagelink rows dropped because an endpoint did not resolve.",
	})
	LinksDroppedSelfLoop = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_links_dropped_self_loop_total",
		Help: "Pagelink rows dropped as self-loops after resolution.",
	})
	EdgesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_edges_written_total",
		Help: "Resolved edge pairs emitted to the external sorter.",
	})

	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiwalk_queries_total",
		Help: "Path queries by outcome.",
	}, []string{"outcome"})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikiwalk_path_cache_hits_total",
		Help: "Path queries answered from the cache.",
	})
)
