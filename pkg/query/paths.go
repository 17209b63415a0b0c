package query

import "github.com/OFFIS-RIT/graphvec/pkg/graph"

// DefaultMaxPaths is the number of paths MultiHopPaths collects when no
// limit is given.
const DefaultMaxPaths = 3

// MultiHopPaths enumerates simple directed paths from start to end with at
// most maxHops edges. The search is depth first and follows successors in
// insertion order, it stops once maxResults paths were found. maxResults <= 0
// means DefaultMaxPaths.
//
// Unknown endpoints, start == end, maxHops <= 0 and unreachable targets all
// yield an empty result.
func MultiHopPaths(g *graph.KnowledgeGraph, start, end string, maxHops, maxResults int) [][]string {
	paths := [][]string{}
	if g == nil || maxHops <= 0 || start == end {
		return paths
	}
	if !g.HasNode(start) || !g.HasNode(end) {
		return paths
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxPaths
	}

	onPath := map[string]bool{start: true}
	path := []string{start}

	var walk func(node string) bool
	walk = func(node string) bool {
		for _, next := range g.Successors(node) {
			if onPath[next] {
				continue
			}
			if next == end {
				found := make([]string, len(path)+1)
				copy(found, path)
				found[len(path)] = end
				paths = append(paths, found)
				if len(paths) >= maxResults {
					return true
				}
				continue
			}
			// path has len(path)-1 edges, going through next needs two more
			if len(path)+1 > maxHops {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			done := walk(next)
			path = path[:len(path)-1]
			delete(onPath, next)
			if done {
				return true
			}
		}
		return false
	}
	walk(start)
	return paths
}
