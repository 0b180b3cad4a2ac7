package kademlia

import (
	"sort"
	"time"

	"github.com/attilabuti/eventemitter/v2"
)

// routeTreeNode is a node in the binary prefix tree: either an internal
// node with two children, or a leaf holding a KBucket. Using a sum type
// here (rather than attilabuti-k-bucket's sentinel of "contacts == nil
// means internal") avoids back-pointers and keeps descent carrying the
// current prefix.
type routeTreeNode struct {
	leaf *KBucket // non-nil for a leaf

	zero *routeTreeNode // bit 0 child, non-nil for an internal node
	one  *routeTreeNode // bit 1 child, non-nil for an internal node
}

func (n *routeTreeNode) isLeaf() bool { return n.leaf != nil }

// KBucketTree is the recursive prefix tree whose leaves hold KBuckets.
// Splits occur only along localId's path, keeping the tree
// "deep on one side" and O(L*k) in size.
//
// Grounded on attilabuti-k-bucket/kbucket.go's Add descent loop and
// Closest's ordered DFS, adapted to route through live+cache KBuckets and
// to return change sets instead of emitting add/remove/update events only.
type KBucketTree struct {
	localId Id
	k, c    int
	root    *routeTreeNode
	emitter *eventemitter.Emitter
}

// NewKBucketTree constructs a tree with a single root leaf bucket of
// prefix length 0, sized for k live slots and c cache slots.
func NewKBucketTree(localId Id, k, c int, emitter *eventemitter.Emitter) *KBucketTree {
	return &KBucketTree{
		localId: localId,
		k:       k,
		c:       c,
		root:    &routeTreeNode{leaf: newKBucket(localId, localId, 0, k, c, emitter)},
		emitter: emitter,
	}
}

// descend walks from the root to the leaf owning id, returning the leaf
// node and onPath. onPath is whether every internal node visited branched toward id using the
// same bit as localId (i.e. whether the leaf sits on localId's own path;
// only buckets on this path are eligible for splitting).
func (t *KBucketTree) descend(id Id) (leafNode *routeTreeNode, onPath bool) {
	node := t.root
	onPath = true
	depth := 0
	for !node.isLeaf() {
		bit := id.Bit(depth)
		localBit := t.localId.Bit(depth)
		if bit != localBit {
			onPath = false
		}
		if bit == 0 {
			node = node.zero
		} else {
			node = node.one
		}
		depth++
	}
	return node, onPath
}

// checkBitLen returns an InvalidIdError if id's bit length does not match
// the tree's localId -- called before any descend/visitLeavesOrderedByDistance
// walk, since Id.Bit panics on an out-of-range index rather than erroring,
// and a shorter id can run out of bits partway down an already-split tree.
func (t *KBucketTree) checkBitLen(id Id) error {
	if id.BitLen() != t.localId.BitLen() {
		return &InvalidIdError{Reason: "node id bit length does not match local id"}
	}
	return nil
}

// Touch descends to the owning leaf, touches it, and splits and retries
// if that leaf is on localId's path, its live set is full, and the touch
// changed nothing. The leaf's cache gets the newcomer first, so a full
// on-path leaf whose cache accepts the newcomer is not split; with a
// zero-size cache every refused newcomer leads to a split.
func (t *KBucketTree) Touch(tm time.Time, node Node) (KBucketChangeSet, error) {
	if err := t.checkBitLen(node.Id); err != nil {
		return NoKBucketChange, err
	}
	for {
		leafNode, onPath := t.descend(node.Id)
		bucket := leafNode.leaf

		cs, err := bucket.Touch(tm, node)
		if err != nil {
			return NoKBucketChange, err
		}

		if !cs.IsEmpty() {
			return cs, nil
		}

		// NO_CHANGE: either the cache also rejected it (bucket genuinely
		// full top to bottom and newcomer not competitive) or the live
		// set was full and we are eligible to split.
		if onPath && bucket.LiveIsFull() {
			zero, one := bucket.split()
			leafNode.leaf = nil
			leafNode.zero = &routeTreeNode{leaf: zero}
			leafNode.one = &routeTreeNode{leaf: one}
			continue
		}

		bucket.EmitPing(node, 3)
		return NoKBucketChange, nil
	}
}

// Stale routes to the owning leaf.
func (t *KBucketTree) Stale(node Node) (KBucketChangeSet, error) {
	if err := t.checkBitLen(node.Id); err != nil {
		return NoKBucketChange, err
	}
	leafNode, _ := t.descend(node.Id)
	return leafNode.leaf.Stale(node)
}

// Lock routes to the owning leaf.
func (t *KBucketTree) Lock(node Node) (KBucketChangeSet, error) {
	if err := t.checkBitLen(node.Id); err != nil {
		return NoKBucketChange, err
	}
	leafNode, _ := t.descend(node.Id)
	return leafNode.leaf.Lock(node)
}

// Unlock routes to the owning leaf.
func (t *KBucketTree) Unlock(node Node) (KBucketChangeSet, error) {
	if err := t.checkBitLen(node.Id); err != nil {
		return NoKBucketChange, err
	}
	leafNode, _ := t.descend(node.Id)
	return leafNode.leaf.Unlock(node)
}

// visitLeavesOrderedByDistance visits every leaf in order of increasing XOR
// distance of the leaf's prefix region from id: at each internal node,
// descend first into the child whose prefix bit matches id's bit at that
// depth, then the sibling, mirroring attilabuti-k-bucket's Closest DFS.
func (t *KBucketTree) visitLeavesOrderedByDistance(id Id, visit func(*KBucket)) {
	type frame struct {
		node  *routeTreeNode
		depth int
	}
	stack := []frame{{t.root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.node.isLeaf() {
			visit(f.node.leaf)
			continue
		}

		matching, other := f.node.zero, f.node.one
		if id.Bit(f.depth) == 1 {
			matching, other = f.node.one, f.node.zero
		}
		// Push the non-matching child first so the matching one is popped
		// (and visited) first, preserving the ordering above.
		stack = append(stack, frame{other, f.depth + 1}, frame{matching, f.depth + 1})
	}
}

// Find gathers candidates leaf-by-leaf in distance order, merges, sorts by
// XOR distance from id (ties broken by lower id), and truncates to max.
func (t *KBucketTree) Find(id Id, max int, includeStale bool) ([]Node, error) {
	if err := t.checkBitLen(id); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}

	var candidates []Node
	seen := make(map[string]struct{})
	add := func(n Node) {
		key := n.Id.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		candidates = append(candidates, n)
	}

	t.visitLeavesOrderedByDistance(id, func(b *KBucket) {
		live, cache := b.Dump()
		for _, a := range live {
			add(a.Node)
		}
		if includeStale {
			for _, a := range cache {
				add(a.Node)
			}
		}
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return CloserTo(id, candidates[i].Id, candidates[j].Id)
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}
