package deduction

import "detective_backend/internal/domain"

// Infer walks the accusation graph and picks the node the player's leads
// point at hardest. Every node that appears as an edge source seeds a
// depth-first traversal; each implicates edge crossed bumps a counter for its
// target. Nodes leave the visited set on backtrack so a target reachable over
// several distinct paths is counted once per path, while a cycle cannot trap
// the walk.
//
// The winner needs a strictly greatest count. Ties go to the smallest node id,
// so equivalent graphs built in a different order accuse the same node.
// Returns "" when the graph implicates nobody.
func Infer(nodes []domain.DeductionNode, edges []domain.DeductionEdge) (string, map[string]int) {
	adjacency := make(map[string][]domain.DeductionEdge)
	for _, e := range edges {
		adjacency[e.SourceNodeID] = append(adjacency[e.SourceNodeID], e)
	}

	counts := make(map[string]int)
	visited := make(map[string]bool)

	var walk func(nodeID string)
	walk = func(nodeID string) {
		visited[nodeID] = true
		for _, e := range adjacency[nodeID] {
			if e.Kind == domain.EdgeImplicates {
				counts[e.TargetNodeID]++
			}
			if !visited[e.TargetNodeID] {
				walk(e.TargetNodeID)
			}
		}
		delete(visited, nodeID)
	}

	for source := range adjacency {
		walk(source)
	}

	best := ""
	bestCount := 0
	for target, n := range counts {
		if n > bestCount || (n == bestCount && n > 0 && (best == "" || target < best)) {
			best = target
			bestCount = n
		}
	}

	return best, counts
}

// ClampWarmth pins an oracle-produced warmth score into [0,100]. The oracle
// is asked for that range but occasionally wanders outside it.
func ClampWarmth(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
