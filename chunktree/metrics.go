package chunktree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var treeOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chunktree_operations_total",
	Help: "Number of tree operations, by collection type, operation and outcome",
}, []string{"type", "op", "status"})

var containerSplits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunktree_container_splits_total",
	Help: "Number of overflowing containers split during inserts",
})

var containerRotations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunktree_container_rotations_total",
	Help: "Number of elements rotated between sibling containers during deletes",
})

var containerMerges = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunktree_container_merges_total",
	Help: "Number of sibling containers merged during deletes",
})

var containersWritten = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chunktree_containers_written_total",
	Help: "Number of containers persisted to the block store",
})
