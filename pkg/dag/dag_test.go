package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestAddNode(t *testing.T) {
	g := New(nil)
	if err := g.AddNode(Node{ID: "a"}); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := g.AddNode(Node{ID: "a"}); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("duplicate AddNode() error = %v, want %v", err, ErrDuplicateNodeID)
	}
	if err := g.AddNode(Node{}); !errors.Is(err, ErrInvalidNodeID) {
		t.Errorf("empty AddNode() error = %v, want %v", err, ErrInvalidNodeID)
	}
	n, _ := g.Node("a")
	if n.Meta == nil {
		t.Error("Meta should be initialized")
	}
}

func TestAddEdge(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(Node{ID: "a"})
	_ = g.AddNode(Node{ID: "b"})

	tests := []struct {
		name string
		edge Edge
		want error
	}{
		{"valid", Edge{From: "a", To: "b"}, nil},
		{"duplicate is no-op", Edge{From: "a", To: "b"}, nil},
		{"self edge", Edge{From: "a", To: "a"}, ErrSelfEdge},
		{"unknown source", Edge{From: "x", To: "b"}, ErrUnknownSourceNode},
		{"unknown target", Edge{From: "a", To: "x"}, ErrUnknownTargetNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.AddEdge(tt.edge); !errors.Is(err, tt.want) {
				t.Errorf("AddEdge() error = %v, want %v", err, tt.want)
			}
		})
	}

	if g.EdgeCount() != 1 {
		t.Errorf("EdgeCount() = %d, want 1", g.EdgeCount())
	}
	if !g.HasEdge("a", "b") || g.HasEdge("b", "a") {
		t.Error("HasEdge() reports wrong direction")
	}
}

func TestSetRows(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(Node{ID: "b"})
	_ = g.AddNode(Node{ID: "a"})
	_ = g.AddNode(Node{ID: "c"})
	if g.MaxRow() != 0 {
		t.Errorf("MaxRow() before SetRows = %d, want 0", g.MaxRow())
	}

	g.SetRows(map[string]int{"a": 0, "b": 1, "c": 2})

	if n, _ := g.Node("c"); n.Row != 2 {
		t.Errorf("Row(c) = %d, want 2", n.Row)
	}
	if g.MaxRow() != 2 {
		t.Errorf("MaxRow() = %d, want 2", g.MaxRow())
	}
}

func TestInDegree(t *testing.T) {
	g := New(nil)
	for _, id := range []string{"api", "worker", "shared"} {
		_ = g.AddNode(Node{ID: id})
	}
	_ = g.AddEdge(Edge{From: "api", To: "shared"})
	_ = g.AddEdge(Edge{From: "worker", To: "shared"})
	_ = g.AddEdge(Edge{From: "worker", To: "shared"})

	if got := g.InDegree("shared"); got != 2 {
		t.Errorf("InDegree(shared) = %d, want 2", got)
	}
	if got := g.InDegree("api"); got != 0 {
		t.Errorf("InDegree(api) = %d, want 0", got)
	}
}

func TestFindCycle(t *testing.T) {
	tests := []struct {
		name   string
		edges  [][2]string
		within map[string]bool
		want   []string
	}{
		{"acyclic", [][2]string{{"a", "b"}, {"b", "c"}}, nil, nil},
		{"two cycle", [][2]string{{"a", "b"}, {"b", "a"}}, nil, []string{"a", "b"}},
		{"triangle behind tail", [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "b"}}, nil, []string{"b", "c", "d"}},
		{"restricted away", [][2]string{{"a", "b"}, {"b", "a"}}, map[string]bool{"a": true, "c": true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(nil)
			for _, id := range []string{"a", "b", "c", "d"} {
				_ = g.AddNode(Node{ID: id})
			}
			for _, e := range tt.edges {
				_ = g.AddEdge(Edge{From: e[0], To: e[1]})
			}
			if got := g.FindCycle(tt.within); !slices.Equal(got, tt.want) {
				t.Errorf("FindCycle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	g := New(nil)
	_ = g.AddNode(Node{ID: "a"})
	_ = g.AddNode(Node{ID: "b"})
	_ = g.AddEdge(Edge{From: "a", To: "b"})
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	_ = g.AddEdge(Edge{From: "b", To: "a"})
	if err := g.Validate(); !errors.Is(err, ErrGraphHasCycle) {
		t.Errorf("Validate() error = %v, want %v", err, ErrGraphHasCycle)
	}
}

func TestSourcesAndSinks(t *testing.T) {
	g := New(nil)
	for _, id := range []string{"app", "lib", "core", "lone"} {
		_ = g.AddNode(Node{ID: id})
	}
	_ = g.AddEdge(Edge{From: "app", To: "lib"})
	_ = g.AddEdge(Edge{From: "lib", To: "core"})

	if got := NodeIDs(g.Sources()); !slices.Equal(got, []string{"app", "lone"}) {
		t.Errorf("Sources() = %v", got)
	}
	if got := NodeIDs(g.Sinks()); !slices.Equal(got, []string{"core", "lone"}) {
		t.Errorf("Sinks() = %v", got)
	}
}
