package chunk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chunk_fetch_total",
	Help: "Number of chunk reads, by source and outcome",
}, []string{"source", "status"})

var remoteFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chunk_remote_fetch_duration_seconds",
	Help:    "Latency of chunk fetches from owning peers",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
})

var corruptChunks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunk_corrupt_total",
	Help: "Number of remote chunks rejected because their bytes did not hash to the requested identifier",
})

var chunksStored = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunk_put_total",
	Help: "Number of chunks written to the local block store",
})
