package bvh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel   = "tree"
	resultLabel = "result"

	updateResultSkipped    = "skipped"
	updateResultReinserted = "reinserted"
)

var (
	bvhInsertions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_insertions",
		Help: "The number of keys inserted in bounding volume hierarchies.",
	}, []string{treeLabel})

	bvhRemovals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_removals",
		Help: "The number of keys removed from bounding volume hierarchies.",
	}, []string{treeLabel})

	bvhUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_updates",
		Help: "The number of bound updates, by whether the key had to be reinserted.",
	}, []string{treeLabel, resultLabel})

	bvhRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_rotations",
		Help: "The number of rotations performed to rebalance bounding volume hierarchies.",
	}, []string{treeLabel})
)

func instrumentInsertion(tree string) {
	bvhInsertions.
		With(prometheus.Labels{treeLabel: tree}).
		Inc()
}

func instrumentRemoval(tree string) {
	bvhRemovals.
		With(prometheus.Labels{treeLabel: tree}).
		Inc()
}

func instrumentUpdate(tree string, reinserted bool) {
	result := updateResultSkipped
	if reinserted {
		result = updateResultReinserted
	}

	bvhUpdates.
		With(prometheus.Labels{
			treeLabel:   tree,
			resultLabel: result,
		}).
		Inc()
}

func instrumentRotations(tree string, n int) {
	if n == 0 {
		return
	}

	bvhRotations.
		With(prometheus.Labels{treeLabel: tree}).
		Add(float64(n))
}
