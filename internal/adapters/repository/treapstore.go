package repository

import "math/rand/v2"

// Treap-based index of evaluated submissions for one (problem, dimension).
//
// Ordering: score ASC, then insertion sequence ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the
// submissions from best to worst with the earliest submission first
// among equal scores.

// treap node
type node struct {
	id    string
	score float64
	seq   uint64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aSeq) should appear before (bScore, bSeq).
func less(aScore float64, aSeq uint64, bScore float64, bSeq uint64) bool {
	if aScore != bScore {
		return aScore < bScore // lower score ranks earlier
	}
	return aSeq < bSeq
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64, seq uint64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, seq: seq, prio: prio, size: 1}
	}
	if less(score, seq, n.score, n.seq) {
		n.left = insert(n.left, id, score, seq, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, seq, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, score float64, seq uint64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && seq == n.seq {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, score, seq)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, score, seq)
		}
	} else if less(score, seq, n.score, n.seq) {
		n.left = deleteNode(n.left, score, seq)
	} else {
		n.right = deleteNode(n.right, score, seq)
	}
	fix(n)
	return n
}

// collectAll appends all submission ids in rank order (lowest scores first).
func collectAll(n *node, out *[]string) {
	if n == nil {
		return
	}
	collectAll(n.left, out)
	*out = append(*out, n.id)
	collectAll(n.right, out)
}

// scoreIndex is one treap plus the random source for its priorities.
// Callers hold the owning store's lock.
type scoreIndex struct {
	root *node
	rng  *rand.Rand
}

func (t *scoreIndex) add(id string, score float64, seq uint64) {
	t.root = insert(t.root, id, score, seq, t.rng.Uint64())
}

func (t *scoreIndex) remove(score float64, seq uint64) {
	t.root = deleteNode(t.root, score, seq)
}

func (t *scoreIndex) ordered() []string {
	out := make([]string, 0, nsize(t.root))
	collectAll(t.root, &out)
	return out
}

func (t *scoreIndex) len() int { return nsize(t.root) }
