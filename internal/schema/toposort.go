package schema

import "fmt"

// toposort orders sequence ids so that every sequence appears after all
// sequences it DependsOn, using Kahn's algorithm. Ties (no dependency
// relation) are broken by lexicographic sequence id, so builds are
// deterministic.
func toposort(seqs map[string]*Sequence) ([]string, error) {
	indegree := make(map[string]int, len(seqs))
	dependents := make(map[string][]string, len(seqs))

	ids := make([]string, 0, len(seqs))
	for id := range seqs {
		ids = append(ids, id)
		indegree[id] = 0
	}
	sortStrings(ids)

	for _, id := range ids {
		seq := seqs[id]
		for _, dep := range seq.DependsOn {
			if _, ok := seqs[dep]; !ok {
				return nil, fmt.Errorf("schema: sequence %q depends on unknown sequence %q", id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			indegree[id]++
		}
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	out := make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)

		next := dependents[id]
		sortStrings(next)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(out) != len(ids) {
		return nil, fmt.Errorf("schema: dependency cycle detected among migration sequences")
	}
	return out, nil
}

// sortStrings is a tiny insertion sort to avoid importing sort for a
// handful of sequence ids at build time; sequence counts are small
// (dozens, not thousands).
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
