package retrieval

import (
	"sort"

	"codenerd-core/internal/types"
)

// Edge is a directed dependency edge, file imports file or symbol calls
// symbol, as sourced from the HCG's imports/calls facts (§4.3 stage 6).
type Edge struct {
	From, To string
}

// tarjan finds strongly connected components of the graph described by
// edges, returning them in reverse topological order (each component's
// dependencies appear in components returned earlier), the standard
// shape Tarjan's algorithm produces.
type tarjan struct {
	adj      map[string][]string
	index    map[string]int
	lowlink  map[string]int
	onStack  map[string]bool
	stack    []string
	counter  int
	sccs     [][]string
}

func newTarjan(nodes []string, edges []Edge) *tarjan {
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		adj[n] = nil
	}
	for _, e := range edges {
		if _, ok := adj[e.From]; !ok {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
	}
	return &tarjan{
		adj:     adj,
		index:   map[string]int{},
		lowlink: map[string]int{},
		onStack: map[string]bool{},
	}
}

func (t *tarjan) run(nodes []string) [][]string {
	for _, n := range nodes {
		if _, visited := t.index[n]; !visited {
			t.strongConnect(n)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, ok := t.adj[w]; !ok {
			continue // edge points outside the node set we were asked to order
		}
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var component []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, component)
	}
}

// TarjanSCC returns the strongly connected components of the graph
// (nodes, edges), each in arbitrary internal order, with each component
// appearing after every component reachable from it, so dependencies
// come first (reverse-topological emission order of Tarjan's algorithm).
func TarjanSCC(nodes []string, edges []Edge) [][]string {
	return newTarjan(nodes, edges).run(nodes)
}

// OrderByDependency implements stage 6: reorders fused/reranked chunks
// so a chunk's dependencies (per the HCG's calls/imports facts) are
// placed before it, using each chunk's strongly connected component as
// the ordering unit (a cycle is kept together, in score order) and
// otherwise preserving each chunk's relative score rank within its
// component. Chunks are identified by FilePath (falling back to FQN)
// to match against edges; chunks with no matching node keep their
// original relative order, appended after the dependency-ordered set.
func OrderByDependency(chunks []types.RetrievalChunk, edges []Edge) []types.RetrievalChunk {
	nodeOf := func(c types.RetrievalChunk) string {
		if c.FilePath != "" {
			return c.FilePath
		}
		return c.FQN
	}

	type posChunk struct {
		chunk types.RetrievalChunk
		pos   int // original (score-ranked) position, restored within a component
	}

	var nodes []string
	seen := map[string]bool{}
	byNode := map[string][]posChunk{}
	var unmatched []types.RetrievalChunk
	for i, c := range chunks {
		n := nodeOf(c)
		if n == "" {
			unmatched = append(unmatched, c)
			continue
		}
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
		byNode[n] = append(byNode[n], posChunk{chunk: c, pos: i})
	}
	if len(nodes) == 0 {
		return unmatched
	}

	sccs := TarjanSCC(nodes, edges)

	// A component is emitted only after every component it points to, so
	// walking the emission order forward places a chunk's dependencies
	// (the To side of its edges) ahead of the chunk itself.
	out := make([]types.RetrievalChunk, 0, len(chunks))
	for _, comp := range sccs {
		var group []posChunk
		for _, n := range comp {
			group = append(group, byNode[n]...)
		}
		sort.Slice(group, func(i, j int) bool { return group[i].pos < group[j].pos })
		for _, g := range group {
			out = append(out, g.chunk)
		}
	}
	out = append(out, unmatched...)
	return out
}
