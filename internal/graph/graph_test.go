package graph

import "testing"

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestTopoSortAcyclic(t *testing.T) {
	g := New()
	for _, id := range []string{"login", "send", "fetch"} {
		g.AddNode(id)
	}
	g.AddEdge("login", "send")
	g.AddEdge("login", "fetch")

	order, acyclic := g.TopoSort()
	if !acyclic {
		t.Fatal("expected acyclic graph")
	}
	if len(order) != 3 {
		t.Fatalf("order has %d nodes, want 3", len(order))
	}
	if indexOf(order, "login") > indexOf(order, "send") {
		t.Errorf("login must precede send: %v", order)
	}
	if indexOf(order, "login") > indexOf(order, "fetch") {
		t.Errorf("login must precede fetch: %v", order)
	}
}

func TestTopoSortCycle(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("c")
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.AddEdge("a", "c")

	order, acyclic := g.TopoSort()
	if acyclic {
		t.Error("expected cycle to be reported")
	}
	if len(order) >= 3 {
		t.Errorf("cyclic graph should yield a partial order, got %v", order)
	}
}

func TestAddEdgeUnknownNodeIgnored(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddEdge("ghost", "a")
	g.AddEdge("a", "ghost")

	order, acyclic := g.TopoSort()
	if !acyclic || len(order) != 1 || order[0] != "a" {
		t.Errorf("order = %v acyclic = %v, want [a] true", order, acyclic)
	}
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("a")
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
}
