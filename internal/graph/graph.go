// Package graph holds the reachability graph the registry consults when a
// handler subscribes. Nodes are interned channel names, edges mean "an event
// on the source channel can cause an emit on the target channel". The graph
// is append-only from the registry's point of view; staging happens on a
// clone so a rejected subscription never dirties the committed state.
package graph

import "sort"

// Graph is an arena of interned channel names with index-pair edges.
// It is not safe for concurrent use; the registry serializes access.
type Graph struct {
	index map[string]int
	names []string
	out   [][]int
}

func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Node interns name and returns its stable handle.
func (g *Graph) Node(name string) int {
	if id, ok := g.index[name]; ok {
		return id
	}
	id := len(g.names)
	g.index[name] = id
	g.names = append(g.names, name)
	g.out = append(g.out, nil)
	return id
}

// Name returns the channel name for a handle.
func (g *Graph) Name(id int) string { return g.names[id] }

// AddEdge records from -> to. Duplicate edges collapse; neighbor lists are
// kept sorted by target name so traversal order is reproducible.
func (g *Graph) AddEdge(from, to int) {
	neighbors := g.out[from]
	pos := sort.Search(len(neighbors), func(i int) bool {
		return g.names[neighbors[i]] >= g.names[to]
	})
	if pos < len(neighbors) && neighbors[pos] == to {
		return
	}
	neighbors = append(neighbors, 0)
	copy(neighbors[pos+1:], neighbors[pos:])
	neighbors[pos] = to
	g.out[from] = neighbors
}

// Clone returns an independent copy. Used to stage a subscription's edges
// before cycle detection commits or discards them.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		index: make(map[string]int, len(g.index)),
		names: append([]string(nil), g.names...),
		out:   make([][]int, len(g.out)),
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for i, neighbors := range g.out {
		c.out[i] = append([]int(nil), neighbors...)
	}
	return c
}

// Edges returns every edge as a (from, to) name pair, sorted.
func (g *Graph) Edges() [][2]string {
	var edges [][2]string
	for from, neighbors := range g.out {
		for _, to := range neighbors {
			edges = append(edges, [2]string{g.names[from], g.names[to]})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// FindCycle runs a depth-first search from every node, tracking the current
// path. When the walk reaches a node already on the path, the returned chain
// is the path slice from that node's first occurrence to the end. Roots and
// neighbors are visited in sorted name order, so the first cycle found is
// deterministic.
func (g *Graph) FindCycle() ([]string, bool) {
	roots := make([]int, len(g.names))
	for i := range roots {
		roots[i] = i
	}
	sort.Slice(roots, func(i, j int) bool { return g.names[roots[i]] < g.names[roots[j]] })

	var chain []int
	for _, root := range roots {
		chain = append(chain[:0], root)
		if cycle := g.walk(root, &chain); cycle != nil {
			names := make([]string, len(cycle))
			for i, id := range cycle {
				names[i] = g.names[id]
			}
			return names, true
		}
	}
	return nil, false
}

func (g *Graph) walk(node int, chain *[]int) []int {
	for _, next := range g.out[node] {
		for i, seen := range *chain {
			if seen == next {
				return append([]int(nil), (*chain)[i:]...)
			}
		}
		*chain = append(*chain, next)
		if cycle := g.walk(next, chain); cycle != nil {
			return cycle
		}
		*chain = (*chain)[:len(*chain)-1]
	}
	return nil
}
