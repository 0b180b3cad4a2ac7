package kademlia

import (
	"sort"
	"time"

	"github.com/attilabuti/eventemitter/v2"
)

// RouterConfig configures a Router at construction time: a plain struct
// with validated/defaulted fields, rather than a long positional
// constructor.
type RouterConfig struct {
	LocalId Id

	// BucketSize is k, the number of live slots per KBucket. (Default: 20)
	BucketSize int

	// CacheSize is c, the number of replacement-cache slots per KBucket.
	// (Default: 3)
	CacheSize int

	// NearSetSize is n, the capacity of the globally-closest near set.
	// (Default: 20)
	NearSetSize int

	// Emitter, if non-nil, receives router.*/kbucket.* events alongside
	// every returned change set. Optional.
	Emitter *eventemitter.Emitter
}

func setDefaultsRouterConfig(cfg RouterConfig) RouterConfig {
	if cfg.BucketSize < 1 {
		cfg.BucketSize = 20
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 3
	}
	if cfg.NearSetSize < 1 {
		cfg.NearSetSize = 20
	}
	return cfg
}

// Router composes a KBucketTree with a NodeMostRecentSet "near set" of
// capacity n, and answers find.
type Router struct {
	localId Id
	tree    *KBucketTree
	nearSet *NodeMostRecentSet
	emitter *eventemitter.Emitter
}

// NewRouter constructs a Router from cfg. LocalId is required; all other
// fields are defaulted if left zero.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.LocalId.BitLen() == 0 {
		return nil, &InvalidIdError{Reason: "RouterConfig.LocalId must be set"}
	}
	cfg = setDefaultsRouterConfig(cfg)

	return &Router{
		localId: cfg.LocalId,
		tree:    NewKBucketTree(cfg.LocalId, cfg.BucketSize, cfg.CacheSize, cfg.Emitter),
		nearSet: NewNodeMostRecentSet(cfg.LocalId, cfg.NearSetSize),
		emitter: cfg.Emitter,
	}, nil
}

// LocalId returns the router's own id.
func (r *Router) LocalId() Id { return r.localId }

// Touch runs tree.Touch and touchNearSet independently, merging the results
// into one KBucketChangeSet. A no-op (NoKBucketChange, nil) is returned if
// node is the local id.
func (r *Router) Touch(t time.Time, node Node) (KBucketChangeSet, error) {
	if node.Id.Equal(r.localId) {
		return NoKBucketChange, nil
	}
	if err := node.validate(); err != nil {
		return NoKBucketChange, err
	}
	// Check the near set for a link conflict before the tree commits, so a
	// conflict there leaves both unchanged.
	if existing, ok := r.nearSet.Get(node.Id); ok && existing.Node.sameIdDifferentLink(node) {
		return NoKBucketChange, &LinkConflictError{Id: node.Id, ExistingLink: existing.Node.Link, NewLink: node.Link}
	}

	treeChange, err := r.tree.Touch(t, node)
	if err != nil {
		return NoKBucketChange, err
	}

	nearChange, err := r.touchNearSet(t, node)
	if err != nil {
		return NoKBucketChange, err
	}

	merged := KBucketChangeSet{
		BucketChange: mergeActivityChangeSets(treeChange.BucketChange, nearChange),
		CacheChange:  treeChange.CacheChange,
	}

	if r.emitter != nil && !merged.IsEmpty() {
		r.emitter.Emit("router.touched", merged)
	}
	return merged, nil
}

// touchNearSet admits node into the near set. Unlike a KBucket cache's
// plain time-ordered touch, admission into a full near set is gated by
// XOR distance to the local id, not recency: a newcomer only displaces the
// current farthest member if it is strictly closer (see
// original_source/kademlia/.../RouterTest.java's "farther away than the
// top 2" rationale). An id already present is always updated regardless of
// distance, and admission into a near set with spare capacity never
// requires competition.
func (r *Router) touchNearSet(t time.Time, node Node) (ActivityChangeSet, error) {
	if r.nearSet.Contains(node.Id) || r.nearSet.Size() < r.nearSet.MaxSize() {
		return r.nearSet.Touch(t, node)
	}

	dump := r.nearSet.Dump()
	farthest := dump[0]
	for _, a := range dump[1:] {
		if CloserTo(r.localId, farthest.Node.Id, a.Node.Id) {
			farthest = a
		}
	}

	if !CloserTo(r.localId, node.Id, farthest.Node.Id) {
		return NoActivityChange, nil
	}

	removeChange, err := r.nearSet.Remove(farthest.Node)
	if err != nil {
		return NoActivityChange, err
	}
	addChange, err := r.nearSet.Touch(t, node)
	if err != nil {
		return NoActivityChange, err
	}
	return mergeActivityChangeSets(removeChange, addChange), nil
}

// Stale delegates to the tree; the near set is purely observational and
// unaffected by staleness.
func (r *Router) Stale(node Node) (KBucketChangeSet, error) {
	cs, err := r.tree.Stale(node)
	if err != nil {
		return NoKBucketChange, err
	}
	if r.emitter != nil && !cs.IsEmpty() {
		r.emitter.Emit("router.staled", cs)
	}
	return cs, nil
}

// Lock delegates to the tree.
func (r *Router) Lock(node Node) (KBucketChangeSet, error) {
	cs, err := r.tree.Lock(node)
	if err == nil && r.emitter != nil {
		r.emitter.Emit("router.locked", node)
	}
	return cs, err
}

// Unlock delegates to the tree.
func (r *Router) Unlock(node Node) (KBucketChangeSet, error) {
	cs, err := r.tree.Unlock(node)
	if err == nil && r.emitter != nil {
		r.emitter.Emit("router.unlocked", node)
	}
	return cs, err
}

// Find merges tree.Find and the near set's dump by XOR distance from id,
// deduplicates by id, and truncates to max.
func (r *Router) Find(id Id, max int) ([]Node, error) {
	if id.BitLen() != r.localId.BitLen() {
		return nil, &InvalidIdError{Reason: "query id bit length does not match local id"}
	}
	if max <= 0 {
		return nil, nil
	}

	treeResults, err := r.tree.Find(id, max, false)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(treeResults))
	var merged []Node
	for _, n := range treeResults {
		seen[n.Id.String()] = struct{}{}
		merged = append(merged, n)
	}

	for _, a := range r.nearSet.Dump() {
		key := a.Node.Id.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, a.Node)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return CloserTo(id, merged[i].Id, merged[j].Id)
	})

	if len(merged) > max {
		merged = merged[:max]
	}
	return merged, nil
}
