// Package graph provides a small directed graph used to order the tasks of
// a chain by their declared dependencies.
package graph

import "sort"

// Directed is a directed graph over string node ids. An edge from a to b
// means b depends on a (a must run first).
type Directed struct {
	order []string            // insertion order, for deterministic output
	nodes map[string]struct{}
	out   map[string][]string // edges a -> b
	in    map[string]int      // indegree
}

// New creates an empty directed graph.
func New() *Directed {
	return &Directed{
		nodes: make(map[string]struct{}),
		out:   make(map[string][]string),
		in:    make(map[string]int),
	}
}

// AddNode registers a node. Adding an existing node is a no-op.
func (g *Directed) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = struct{}{}
	g.order = append(g.order, id)
}

// AddEdge records that to depends on from. Both endpoints must already be
// nodes; edges to unknown nodes are ignored so a partial dependency list
// (pointing outside the graph) cannot corrupt ordering.
func (g *Directed) AddEdge(from, to string) {
	if _, ok := g.nodes[from]; !ok {
		return
	}
	if _, ok := g.nodes[to]; !ok {
		return
	}
	g.out[from] = append(g.out[from], to)
	g.in[to]++
}

// Len returns the node count.
func (g *Directed) Len() int { return len(g.order) }

// TopoSort runs Kahn's algorithm. It returns the topological order and true
// when the graph is acyclic. A cycle is a normal outcome, not an error: the
// returned order is then partial and acyclic=false tells the caller to fall
// back to another ordering.
func (g *Directed) TopoSort() (order []string, acyclic bool) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = g.in[id]
	}

	var ready []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	// Deterministic tie-breaking among ready nodes.
	sort.Strings(ready)

	order = make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var released []string
		for _, next := range g.out[id] {
			indegree[next]--
			if indegree[next] == 0 {
				released = append(released, next)
			}
		}
		sort.Strings(released)
		ready = append(ready, released...)
	}
	return order, len(order) == len(g.nodes)
}
