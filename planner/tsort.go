package planner

// topologicalSort orders nodes so that every node comes after its
// dependencies, using depth-first search with three-colour marking. Nodes are
// visited in seed order, which makes the result deterministic. When a cycle is
// found the sort is abandoned and the cycle is returned, closed (first == last).
func topologicalSort(seed []int, dependencies map[int][]int) (sorted []int, cycle []int) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[int]int, len(seed))
	var stack []int

	var visit func(int) bool
	visit = func(n int) bool {
		switch state[n] {
		case visiting:
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == n {
					cycle = append(append([]int{}, stack[i:]...), n)
					break
				}
			}
			return false
		case visited:
			return true
		}

		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range dependencies[n] {
			if !visit(dep) {
				return false
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		sorted = append(sorted, n)
		return true
	}

	for _, n := range seed {
		if state[n] == unvisited && !visit(n) {
			return nil, cycle
		}
	}
	return sorted, nil
}
