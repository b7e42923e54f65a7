package solver

// GroupSizes spreads people over at most groups groups as evenly as possible.
// The first people%n groups get one extra member.
func GroupSizes(groups, people int) []int {
	n := min(groups, people)
	if n <= 0 {
		return nil
	}
	base := people / n
	extra := people % n
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}
