// Package cluster groups distribution shapes whose pairwise area difference
// falls within a configured radius, so runs of similar histograms can be
// stored as references to a shared centroid instead of full distributions.
package cluster

import (
	"github.com/corestat/corestat/internal/ecdf"
)

// unassigned marks a sample no cluster has claimed yet.
const unassigned = -1

// A Centroid is the merged shape of every sample a cluster has absorbed,
// together with the radius the cluster was formed under.
type Centroid struct {
	Shape *ecdf.InterpolatedECDF
	Eps   float64
}

// A Group is an incremental clusterer over distribution shapes. Cluster ids
// are dense and stable: earlier batches never have their assignments revised
// by later ones.
type Group struct {
	eps       float64
	centroids []Centroid
}

// NewGroup returns a Group that treats two shapes as neighbors when the area
// difference between them is below eps.
func NewGroup(eps float64) *Group {
	return &Group{eps: eps}
}

// Centroids returns the centroids of every cluster opened so far, indexed by
// cluster id.
func (g *Group) Centroids() []Centroid {
	return g.centroids
}

// findNeighbors returns the indices of unassigned samples within eps of the
// given shape.
func findNeighbors(shape *ecdf.InterpolatedECDF, samples []*ecdf.InterpolatedECDF, assignments []int, eps float64) []int {
	var neighbors []int
	for idx, pt := range samples {
		if assignments[idx] != unassigned {
			continue
		}
		if shape.AreaDifference(pt) < eps {
			neighbors = append(neighbors, idx)
		}
	}
	return neighbors
}

// run performs one DBSCAN pass over the samples. Known centroids claim their
// neighbors first, keeping cluster ids aligned with the centroid list; the
// remaining samples are scanned in order, each unassigned one opening a new
// cluster around itself.
func (g *Group) run(samples []*ecdf.InterpolatedECDF) []int {
	assignments := make([]int, len(samples))
	for i := range assignments {
		assignments[i] = unassigned
	}

	cluster := 0
	for _, c := range g.centroids {
		for _, idx := range findNeighbors(c.Shape, samples, assignments, g.eps) {
			assignments[idx] = cluster
		}
		cluster++
	}
	for idx := range samples {
		if assignments[idx] != unassigned {
			continue
		}
		// A sample is always within eps of itself, so the new cluster
		// claims at least one member.
		for _, n := range findNeighbors(samples[idx], samples, assignments, g.eps) {
			assignments[n] = cluster
		}
		cluster++
	}
	return assignments
}

// ProcessBatch assigns every sample in the batch to a cluster and returns the
// per-sample cluster ids. Samples that match no existing centroid open new
// clusters, whose centroids are the merge of their members at the group's
// radius.
func (g *Group) ProcessBatch(samples []*ecdf.InterpolatedECDF) []int {
	if len(samples) == 0 {
		return nil
	}
	assignments := g.run(samples)

	known := len(g.centroids)
	for idx, cluster := range assignments {
		if cluster < known {
			continue
		}
		for len(g.centroids) <= cluster {
			g.centroids = append(g.centroids, Centroid{
				Shape: &ecdf.InterpolatedECDF{},
				Eps:   g.eps,
			})
		}
		c := &g.centroids[cluster]
		c.Shape = c.Shape.Merge(samples[idx])
	}
	return assignments
}
