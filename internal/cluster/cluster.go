// Package cluster groups tasks by similarity distance. The clustering
// algorithm is behind a small Strategy interface so the chain generator
// never depends on a specific method.
package cluster

import "fmt"

// Noise marks a point that did not join any cluster.
const Noise = -1

// DistanceMatrix is a symmetric matrix of pairwise distances in [0,1],
// typically 1 - similarity.
type DistanceMatrix struct {
	n int
	d [][]float64
}

// NewDistanceMatrix allocates an n×n zero matrix.
func NewDistanceMatrix(n int) *DistanceMatrix {
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	return &DistanceMatrix{n: n, d: d}
}

// Len returns the number of points.
func (m *DistanceMatrix) Len() int { return m.n }

// Set records the distance between points i and j, symmetrically.
func (m *DistanceMatrix) Set(i, j int, dist float64) {
	m.d[i][j] = dist
	m.d[j][i] = dist
}

// At returns the distance between points i and j.
func (m *DistanceMatrix) At(i, j int) float64 { return m.d[i][j] }

// Strategy assigns every point a cluster label. Labels are dense, starting
// at 0; Noise marks points that belong to no cluster.
type Strategy interface {
	Cluster(m *DistanceMatrix) ([]int, error)
}

// DBSCAN is a density-based Strategy over a precomputed distance matrix.
// Points within Eps of each other are neighbors; a point with at least
// MinSamples neighbors (itself included) seeds a cluster.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// DefaultDBSCAN returns the engine's default clustering parameters.
func DefaultDBSCAN() *DBSCAN {
	return &DBSCAN{Eps: 0.5, MinSamples: 2}
}

// Cluster implements Strategy.
func (s *DBSCAN) Cluster(m *DistanceMatrix) ([]int, error) {
	if s.Eps <= 0 || s.MinSamples < 1 {
		return nil, fmt.Errorf("invalid dbscan parameters: eps=%f min_samples=%d", s.Eps, s.MinSamples)
	}

	const unvisited = -2
	labels := make([]int, m.Len())
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := 0; i < m.Len(); i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := s.neighbors(m, i)
		if len(neighbors) < s.MinSamples {
			labels[i] = Noise
			continue
		}

		labels[i] = next
		// Expand the cluster breadth-first over density-reachable points.
		queue := append([]int(nil), neighbors...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == Noise {
				labels[j] = next // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = next
			jn := s.neighbors(m, j)
			if len(jn) >= s.MinSamples {
				queue = append(queue, jn...)
			}
		}
		next++
	}
	return labels, nil
}

// neighbors returns all points within Eps of point i, including i itself.
func (s *DBSCAN) neighbors(m *DistanceMatrix, i int) []int {
	var out []int
	for j := 0; j < m.Len(); j++ {
		if m.At(i, j) <= s.Eps {
			out = append(out, j)
		}
	}
	return out
}

// Groups converts a label slice into clusters of point indices, dropping
// noise points. Cluster order follows label order.
func Groups(labels []int) [][]int {
	byLabel := make(map[int][]int)
	max := -1
	for i, l := range labels {
		if l == Noise {
			continue
		}
		byLabel[l] = append(byLabel[l], i)
		if l > max {
			max = l
		}
	}
	out := make([][]int, 0, len(byLabel))
	for l := 0; l <= max; l++ {
		if pts, ok := byLabel[l]; ok {
			out = append(out, pts)
		}
	}
	return out
}
