package users

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roster_user_cache_hits_total",
	Help: "Total number of user lookups served from the cache",
})

var userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roster_user_cache_misses_total",
	Help: "Total number of user lookups that fell through to the store",
})

var userCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "roster_user_cache_entries",
	Help: "Current number of entries in the user cache",
})
