package cluster

import (
	"reflect"
	"testing"
)

// matrixFor builds a distance matrix from explicit rows.
func matrixFor(rows [][]float64) *DistanceMatrix {
	m := NewDistanceMatrix(len(rows))
	for i := range rows {
		for j := range rows[i] {
			if j > i {
				m.Set(i, j, rows[i][j])
			}
		}
	}
	return m
}

func TestDBSCANTwoClustersAndNoise(t *testing.T) {
	// Points 0,1 close; points 2,3 close; point 4 far from everything.
	m := matrixFor([][]float64{
		{0, 0.1, 0.9, 0.9, 0.9},
		{0, 0, 0.9, 0.9, 0.9},
		{0, 0, 0, 0.2, 0.9},
		{0, 0, 0, 0, 0.9},
		{0, 0, 0, 0, 0},
	})

	labels, err := DefaultDBSCAN().Cluster(m)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}

	if labels[0] != labels[1] {
		t.Errorf("points 0,1 should share a cluster: %v", labels)
	}
	if labels[2] != labels[3] {
		t.Errorf("points 2,3 should share a cluster: %v", labels)
	}
	if labels[0] == labels[2] {
		t.Errorf("the two pairs should be distinct clusters: %v", labels)
	}
	if labels[4] != Noise {
		t.Errorf("point 4 should be noise, got %d", labels[4])
	}

	groups := Groups(labels)
	want := [][]int{{0, 1}, {2, 3}}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("Groups = %v, want %v", groups, want)
	}
}

func TestDBSCANAllNoise(t *testing.T) {
	m := matrixFor([][]float64{
		{0, 0.9, 0.9},
		{0, 0, 0.9},
		{0, 0, 0},
	})
	labels, err := DefaultDBSCAN().Cluster(m)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	for i, l := range labels {
		if l != Noise {
			t.Errorf("point %d should be noise, got %d", i, l)
		}
	}
	if got := Groups(labels); len(got) != 0 {
		t.Errorf("Groups = %v, want empty", got)
	}
}

func TestDBSCANChainedReachability(t *testing.T) {
	// 0-1 and 1-2 are close, 0-2 is not: density reachability should still
	// pull all three into one cluster.
	m := matrixFor([][]float64{
		{0, 0.3, 0.8},
		{0, 0, 0.3},
		{0, 0, 0},
	})
	labels, err := DefaultDBSCAN().Cluster(m)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("expected one cluster, got %v", labels)
	}
}

func TestDBSCANInvalidParams(t *testing.T) {
	s := &DBSCAN{Eps: 0, MinSamples: 2}
	if _, err := s.Cluster(NewDistanceMatrix(2)); err == nil {
		t.Error("expected error for eps=0")
	}
}
