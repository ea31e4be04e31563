package node

import (
	"math"
	"strconv"
	"time"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/clients/feeder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/sync"
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

func makeDBMetrics() db.EventListener {
	latencyBuckets := []float64{
		25,
		50,
		75,
		100,
		250,
		500,
		1000, // 1ms
		2000,
		3000,
		4000,
		5000,
		10000,
		50000,
		500000,
		math.Inf(0),
	}
	readLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "read_latency",
		Buckets:   latencyBuckets,
	})
	writeLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "write_latency",
		Buckets:   latencyBuckets,
	})
	commitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "commit_latency",
		Buckets: []float64{
			5000,
			10000,
			20000,
			50000,
			100000, // 100ms
			200000,
			500000,
			1000000,
			math.Inf(0),
		},
	})

	prometheus.MustRegister(readLatencyHistogram, writeLatencyHistogram, commitLatency)
	return &db.SelectiveListener{
		OnIOCb: func(write bool, duration time.Duration) {
			if write {
				writeLatencyHistogram.Observe(float64(duration.Microseconds()))
			} else {
				readLatencyHistogram.Observe(float64(duration.Microseconds()))
			}
		},
		OnCommitCb: func(duration time.Duration) {
			commitLatency.Observe(float64(duration.Microseconds()))
		},
	}
}

func makeHTTPMetrics() jsonrpc.TransportListener {
	reqCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "http",
		Name:      "requests",
	})
	prometheus.MustRegister(reqCounter)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			reqCounter.Inc()
		},
	}
}

func makeWSMetrics() jsonrpc.TransportListener {
	reqCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "ws",
		Name:      "requests",
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rpc",
		Subsystem: "ws",
		Name:      "connections",
	})
	prometheus.MustRegister(reqCounter, connections)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			reqCounter.Inc()
		},
		OnConnectionCb: func(opened bool) {
			if opened {
				connections.Inc()
			} else {
				connections.Dec()
			}
		},
	}
}

func makeRPCMetrics() jsonrpc.EventListener {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "server",
		Name:      "requests",
	}, []string{"method"})
	failedRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "server",
		Name:      "failed_requests",
	}, []string{"method", "error_code"})
	requestLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpc",
		Subsystem: "server",
		Name:      "requests_latency",
	}, []string{"method"})
	prometheus.MustRegister(requests, failedRequests, requestLatencies)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			requests.WithLabelValues(method).Inc()
		},
		OnRequestHandledCb: func(method string, took time.Duration) {
			requestLatencies.WithLabelValues(method).Observe(took.Seconds())
		},
		OnRequestFailedCb: func(method string, err *jsonrpc.Error) {
			var errorCode string
			if err != nil {
				errorCode = strconv.Itoa(err.Code)
			}
			failedRequests.WithLabelValues(method, errorCode).Inc()
		},
	}
}

func makeBlockchainMetrics(bcReader blockchain.Reader) blockchain.EventListener {
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockchain",
		Name:      "reads",
	}, []string{"method"})
	storeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blockchain",
		Name:      "store_latency",
	})
	height := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "blockchain",
		Name:      "height",
	}, func() float64 {
		h, _ := bcReader.Height()
		return float64(h)
	})
	prometheus.MustRegister(reads, storeLatency, height)

	return &blockchain.SelectiveListener{
		OnReadCb: func(method string) {
			reads.WithLabelValues(method).Inc()
		},
		OnStoreCb: func(_ uint64, took time.Duration) {
			storeLatency.Observe(took.Seconds())
		},
	}
}

func makePoolMetrics() mempool.EventListener {
	size := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pool",
		Name:      "size",
	}, []string{"queue"})
	admitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pool",
		Name:      "admitted",
	}, []string{"queue"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pool",
		Name:      "rejected",
	}, []string{"kind"})
	prometheus.MustRegister(size, admitted, rejected)

	return &mempool.SelectiveListener{
		OnAdmittedCb: func(future bool) {
			admitted.WithLabelValues(queueLabel(future)).Inc()
		},
		OnRejectedCb: func(kind mempool.ErrorKind) {
			rejected.WithLabelValues(kind.String()).Inc()
		},
		OnSizeChangedCb: func(ready, future int) {
			size.WithLabelValues(queueLabel(false)).Set(float64(ready))
			size.WithLabelValues(queueLabel(true)).Set(float64(future))
		},
	}
}

func queueLabel(future bool) string {
	if future {
		return "future"
	}
	return "ready"
}

func makeBuilderMetrics() builder.EventListener {
	sealed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Name:      "blocks_sealed",
	})
	aborted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Name:      "blocks_aborted",
	})
	txsPerBlock := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "producer",
		Name:      "block_transactions",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	sealLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "producer",
		Name:      "seal_latency",
	})
	executed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "producer",
		Name:      "transactions_executed",
	}, []string{"reverted"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "producer",
		Name:      "transactions_dropped",
	})
	prometheus.MustRegister(sealed, aborted, txsPerBlock, sealLatency, executed, dropped)

	return &builder.SelectiveListener{
		OnBlockSealedCb: func(header *core.Header, took time.Duration) {
			sealed.Inc()
			txsPerBlock.Observe(float64(header.TransactionCount))
			sealLatency.Observe(took.Seconds())
		},
		OnBlockAbortedCb: func(uint64) {
			aborted.Inc()
		},
		OnTransactionExecutedCb: func(reverted bool) {
			executed.WithLabelValues(strconv.FormatBool(reverted)).Inc()
		},
		OnTransactionDroppedCb: func() {
			dropped.Inc()
		},
	}
}

func makeSyncMetrics() sync.EventListener {
	opTimerHistogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sync",
		Name:      "timers",
	}, []string{"stage"})
	checkpoints := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sync",
		Name:      "checkpoint",
	}, []string{"stage"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sync",
		Name:      "stage_errors",
	}, []string{"stage"})
	tip := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sync",
		Name:      "best_known_block_number",
	})
	prometheus.MustRegister(opTimerHistogram, checkpoints, stageErrors, tip)

	return &sync.SelectiveListener{
		OnSyncStepDoneCb: func(stage string, blockNum uint64, took time.Duration) {
			opTimerHistogram.WithLabelValues(stage).Observe(took.Seconds())
			checkpoints.WithLabelValues(stage).Set(float64(blockNum))
		},
		OnStageErrorCb: func(stage string) {
			stageErrors.WithLabelValues(stage).Inc()
		},
		OnTipCb: func(blockNum uint64) {
			tip.Set(float64(blockNum))
		},
	}
}

func makeKatanaMetrics(version string) {
	prometheus.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "katana",
		Name:        "info",
		Help:        "Information about the Katana binary",
		ConstLabels: prometheus.Labels{"version": version},
	}))
}

func makeFeederMetrics() feeder.EventListener {
	requestLatencies := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feeder",
		Subsystem: "client",
		Name:      "request_latency",
	}, []string{"method", "status"})
	prometheus.MustRegister(requestLatencies)
	return &feeder.SelectiveListener{
		OnResponseCb: func(urlPath string, status int, took time.Duration) {
			statusString := strconv.FormatInt(int64(status), 10)
			requestLatencies.WithLabelValues(urlPath, statusString).Observe(took.Seconds())
		},
	}
}

func makePebbleMetrics(nodeDB db.DB) {
	pebbleDB, ok := nodeDB.Impl().(*pebble.DB)
	if !ok {
		return
	}

	blockCacheSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pebble",
		Subsystem: "block_cache",
		Name:      "size",
	}, func() float64 {
		return float64(pebbleDB.Metrics().BlockCache.Size)
	})
	blockHitRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pebble",
		Subsystem: "block_cache",
		Name:      "hit_rate",
	}, func() float64 {
		metrics := pebbleDB.Metrics()
		return hitRate(metrics.BlockCache.Hits, metrics.BlockCache.Misses)
	})
	tableCacheSize := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pebble",
		Subsystem: "table_cache",
		Name:      "size",
	}, func() float64 {
		return float64(pebbleDB.Metrics().TableCache.Size)
	})
	tableHitRate := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pebble",
		Subsystem: "table_cache",
		Name:      "hit_rate",
	}, func() float64 {
		metrics := pebbleDB.Metrics()
		return hitRate(metrics.TableCache.Hits, metrics.TableCache.Misses)
	})
	prometheus.MustRegister(blockCacheSize, blockHitRate, tableCacheSize, tableHitRate)
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func makeExecutorThrottlerMetrics(executor *ThrottledExecutor) {
	jobs := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "executor",
		Name:      "jobs",
	}, func() float64 {
		return float64(executor.JobsRunning())
	})
	queue := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "executor",
		Name:      "queue",
	}, func() float64 {
		return float64(executor.QueueLen())
	})
	prometheus.MustRegister(jobs, queue)
}
