package gpu

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrCyclicGraph     = errors.New("pass graph has a cycle")
	ErrMissingProducer = errors.New("consumed target has no producer")
	ErrAmbiguousWriter = errors.New("target writers are unordered")
	ErrDuplicatePass   = errors.New("duplicate pass name")
)

// Node declares what a pass writes and reads, by target name.
type Node struct {
	Name     string
	Produces string
	Consumes []string
}

// Sort orders nodes so every consumer of a target runs after each of the
// target's producers. A node that consumes its own target (drawing over it)
// is ordered after the other producers. Ties keep declaration order.
// It returns indices into nodes.
func Sort(nodes []Node) ([]int, error) {
	producers := make(map[string][]int)
	names := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if names[n.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePass, n.Name)
		}
		names[n.Name] = true
		producers[n.Produces] = append(producers[n.Produces], i)
	}

	succ := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for c, n := range nodes {
		for _, target := range n.Consumes {
			ps, ok := producers[target]
			if !ok {
				return nil, fmt.Errorf("%w: %s reads %q", ErrMissingProducer, n.Name, target)
			}
			for _, p := range ps {
				if p == c {
					continue
				}
				succ[p] = append(succ[p], c)
				indeg[c]++
			}
		}
	}

	order := make([]int, 0, len(nodes))
	ready := make([]int, 0, len(nodes))
	for i := range nodes {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		sort.Ints(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, s := range succ[n] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	if len(order) != len(nodes) {
		var stuck []string
		for i, d := range indeg {
			if d > 0 {
				stuck = append(stuck, nodes[i].Name)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCyclicGraph, stuck)
	}

	// Several writers of one target must be ordered by a dependency path,
	// otherwise the result depends on declaration order.
	for target, ps := range producers {
		for i := 0; i < len(ps); i++ {
			for j := i + 1; j < len(ps); j++ {
				if !reaches(succ, ps[i], ps[j]) && !reaches(succ, ps[j], ps[i]) {
					return nil, fmt.Errorf("%w: %s and %s both write %q", ErrAmbiguousWriter, nodes[ps[i]].Name, nodes[ps[j]].Name, target)
				}
			}
		}
	}
	return order, nil
}

func reaches(succ [][]int, from, to int) bool {
	seen := make([]bool, len(succ))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, succ[n]...)
	}
	return false
}
