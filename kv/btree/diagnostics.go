package btree

import (
	"github.com/pingcap/errors"
)

// KeyCount walks the whole tree and counts distinct keys. Duplicates would mean a corrupted tree and are counted once.
func (t *BTree) KeyCount() int {
	seen := make(map[string]struct{})
	t.walkNodes(func(n *node, _ int) {
		for _, p := range n.pairs {
			seen[p.key] = struct{}{}
		}
	})
	return len(seen)
}

func (t *BTree) NodeCount() int {
	count := 0
	t.walkNodes(func(*node, int) {
		count++
	})
	return count
}

// Depth is the number of levels in the tree, 0 for an empty tree.
func (t *BTree) Depth() int {
	depth := 0
	for n := t.root; n != nil; depth++ {
		if n.leaf() {
			return depth + 1
		}
		n = n.children[0]
	}
	return depth
}

// Ascend calls fn for every pair in key order until fn returns false.
func (t *BTree) Ascend(fn func(key, value string) bool) {
	if t.root != nil {
		ascend(t.root, fn)
	}
}

func ascend(n *node, fn func(key, value string) bool) bool {
	for i, p := range n.pairs {
		if !n.leaf() && !ascend(n.children[i], fn) {
			return false
		}
		if !fn(p.key, p.value) {
			return false
		}
	}
	if !n.leaf() {
		return ascend(n.children[len(n.pairs)], fn)
	}
	return true
}

func (t *BTree) walkNodes(fn func(n *node, depth int)) {
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		fn(n, depth)
		for _, c := range n.children {
			walk(c, depth+1)
		}
	}
	if t.root != nil {
		walk(t.root, 0)
	}
}

// Verify checks the structural invariants: pair and child bounds, strictly increasing keys, key ranges of children,
// and that every leaf sits at the same depth.
func (t *BTree) Verify() error {
	if t.root == nil {
		return nil
	}
	leafDepth := -1
	var check func(n *node, depth int, lo, hi *string) error
	check = func(n *node, depth int, lo, hi *string) error {
		if len(n.pairs) > t.maxPairs() {
			return errors.Errorf("node at depth %d holds %d pairs, max %d", depth, len(n.pairs), t.maxPairs())
		}
		if n != t.root && len(n.pairs) < t.degree-1 {
			return errors.Errorf("node at depth %d holds %d pairs, min %d", depth, len(n.pairs), t.degree-1)
		}
		for i, p := range n.pairs {
			if i > 0 && n.pairs[i-1].key >= p.key {
				return errors.Errorf("keys out of order at depth %d: %q >= %q", depth, n.pairs[i-1].key, p.key)
			}
			if (lo != nil && p.key <= *lo) || (hi != nil && p.key >= *hi) {
				return errors.Errorf("key %q at depth %d escapes its parent range", p.key, depth)
			}
		}
		if n.leaf() {
			if leafDepth == -1 {
				leafDepth = depth
			} else if leafDepth != depth {
				return errors.Errorf("leaf at depth %d, expected %d", depth, leafDepth)
			}
			return nil
		}
		if len(n.children) != len(n.pairs)+1 {
			return errors.Errorf("node at depth %d has %d pairs but %d children", depth, len(n.pairs), len(n.children))
		}
		for i, c := range n.children {
			clo, chi := lo, hi
			if i > 0 {
				clo = &n.pairs[i-1].key
			}
			if i < len(n.pairs) {
				chi = &n.pairs[i].key
			}
			if err := check(c, depth+1, clo, chi); err != nil {
				return err
			}
		}
		return nil
	}
	return check(t.root, 0, nil, nil)
}
