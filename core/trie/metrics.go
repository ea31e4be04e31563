package trie

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	nodeReads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "trie",
		Name:      "node_reads",
		Help:      "Trie nodes loaded from the database",
	})
	nodeWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "trie",
		Name:      "node_writes",
		Help:      "Trie nodes written to the database",
	})
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "trie",
		Name:      "cache_hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "katana",
		Subsystem: "trie",
		Name:      "cache_misses",
	})
)
