// Package btree implements the in-memory sorted map that backs a treekv node.
//
// The tree is a classic B-tree of minimum degree t: every node holds at most 2t-1 key/value pairs and at most 2t
// children. Insertion is top-down, so a full node is always split before it is descended into and the tree only ever
// grows at the root. There is no delete; pairs are inserted or overwritten in place.
//
// A BTree is not safe for concurrent use. Callers that share one must guard it themselves.
package btree

import (
	"sort"

	"github.com/pingcap/errors"
)

// MinDegree is the smallest degree a tree can be built with. A degree 1 tree could never split.
const MinDegree = 2

var (
	ErrEmptyKey      = errors.New("btree: key is empty")
	ErrInvalidDegree = errors.Errorf("btree: degree must be >= %d", MinDegree)
)

type pair struct {
	key   string
	value string
}

type node struct {
	pairs    []pair
	children []*node
}

func (n *node) leaf() bool {
	return len(n.children) == 0
}

// search returns the index of the first pair whose key is >= key, and whether that pair holds key exactly.
func (n *node) search(key string) (int, bool) {
	i := sort.Search(len(n.pairs), func(j int) bool {
		return n.pairs[j].key >= key
	})
	return i, i < len(n.pairs) && n.pairs[i].key == key
}

type BTree struct {
	degree int
	root   *node
}

func New(degree int) (*BTree, error) {
	if degree < MinDegree {
		return nil, errors.Trace(ErrInvalidDegree)
	}
	return &BTree{degree: degree}, nil
}

func (t *BTree) Degree() int {
	return t.degree
}

func (t *BTree) maxPairs() int {
	return 2*t.degree - 1
}

func (t *BTree) newNode() *node {
	return &node{pairs: make([]pair, 0, t.maxPairs())}
}

func (t *BTree) full(n *node) bool {
	return len(n.pairs) == t.maxPairs()
}

// Put inserts key or overwrites its value. It returns the value that was replaced and whether there was one.
func (t *BTree) Put(key, value string) (string, bool, error) {
	if key == "" {
		return "", false, errors.Trace(ErrEmptyKey)
	}
	if t.root == nil {
		t.root = t.newNode()
	}
	if t.full(t.root) {
		root := t.newNode()
		root.children = append(make([]*node, 0, 2*t.degree), t.root)
		t.splitChild(root, 0)
		t.root = root
	}
	old, replaced := t.insertNonFull(t.root, key, value)
	return old, replaced, nil
}

func (t *BTree) insertNonFull(n *node, key, value string) (string, bool) {
	for {
		i, found := n.search(key)
		if found {
			old := n.pairs[i].value
			n.pairs[i].value = value
			return old, true
		}

		if n.leaf() {
			n.pairs = append(n.pairs, pair{})
			copy(n.pairs[i+1:], n.pairs[i:])
			n.pairs[i] = pair{key: key, value: value}
			return "", false
		}

		if t.full(n.children[i]) {
			t.splitChild(n, i)
			promoted := n.pairs[i].key
			if promoted == key {
				old := n.pairs[i].value
				n.pairs[i].value = value
				return old, true
			}
			if promoted < key {
				i++
			}
		}
		n = n.children[i]
	}
}

// splitChild splits the full child at parent.children[i] into two nodes of t-1 pairs each and promotes the median
// pair into parent at position i. parent must not be full.
func (t *BTree) splitChild(parent *node, i int) {
	d := t.degree
	child := parent.children[i]
	median := child.pairs[d-1]

	right := t.newNode()
	right.pairs = append(right.pairs, child.pairs[d:]...)
	if !child.leaf() {
		right.children = append(make([]*node, 0, 2*d), child.children[d:]...)
		for j := d; j < len(child.children); j++ {
			child.children[j] = nil
		}
		child.children = child.children[:d]
	}
	child.pairs = child.pairs[:d-1]

	parent.children = append(parent.children, nil)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = right

	parent.pairs = append(parent.pairs, pair{})
	copy(parent.pairs[i+1:], parent.pairs[i:])
	parent.pairs[i] = median
}

// Get returns the value stored under key and whether it exists.
func (t *BTree) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.Trace(ErrEmptyKey)
	}
	n := t.root
	for n != nil {
		i, found := n.search(key)
		if found {
			return n.pairs[i].value, true, nil
		}
		if n.leaf() {
			break
		}
		n = n.children[i]
	}
	return "", false, nil
}

func (t *BTree) Contains(key string) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}
