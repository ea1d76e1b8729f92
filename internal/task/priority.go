package task

// PriorityPolicy selects the algorithm used to auto-assign priorities
// to jobs that don't already carry a user-chosen positive one
// (spec.md §4.3).
type PriorityPolicy string

const (
	// PolicyTree drains one tree of jobs before moving to the next.
	PolicyTree PriorityPolicy = "tree"
	// PolicyTrunk is a reserved, unimplemented policy (spec.md §9).
	PolicyTrunk PriorityPolicy = "trunk"
	// PolicyAnarchy assigns no automatic priorities at all.
	PolicyAnarchy PriorityPolicy = "anarchy"
)

// ComparePriority implements the total order of spec.md §4.3:
//   - any positive priority outranks any negative priority
//   - among positives, the smaller number is higher
//   - negatives are all equally (lowest) ranked
//
// It returns a negative number if a outranks b, positive if b
// outranks a, and 0 if they're tied (ties are broken by task id by
// the caller).
func ComparePriority(a, b int) int {
	switch {
	case a < 0 && b < 0:
		return 0
	case a < 0: // a negative, b non-negative: b wins
		return 1
	case b < 0: // b negative, a non-negative: a wins
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// lowestJobPriority finds the highest positive priority already
// present in the pool, bounded below by 0 — the "lowest_priority"
// starting point for auto-assignment.
func lowestJobPriority(jobPool []*Job) int {
	lowest := 0
	for _, j := range jobPool {
		if j.Priority > lowest {
			lowest = j.Priority
		}
	}
	return lowest
}

// assignPriorities stamps priorities onto every job in the pool per
// the chosen policy, without ever overwriting a user-supplied positive
// priority (spec.md §4.3).
func assignPriorities(jobPool []*Job, forest *Forest, policy PriorityPolicy) error {
	switch policy {
	case PolicyTree:
		lowest := lowestJobPriority(jobPool)
		for _, tree := range forest.Trees {
			lowest++
			for _, j := range tree {
				if j.Priority < 0 {
					j.Priority = lowest
				}
			}
		}
		return nil

	case PolicyTrunk:
		// Reserved: breadth-first-by-depth priority assignment. The
		// reference implementation is a stub; left unimplemented here
		// too (spec.md §9).
		return &UnsupportedPolicyError{Policy: string(policy)}

	case PolicyAnarchy:
		// No automatic assignment; dependency order alone constrains
		// execution order.
		return nil

	default:
		return &UnsupportedPolicyError{Policy: string(policy)}
	}
}
