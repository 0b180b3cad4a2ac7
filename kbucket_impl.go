package kademlia

import (
	"time"

	"github.com/attilabuti/eventemitter/v2"
)

// KBucket is a NodeLeastRecentSet of size k acting as the live bucket, plus
// a NodeMostRecentSet of size c acting as a replacement cache, plus the
// lock/stale machinery the Router uses when a transport collaborator
// reports a peer unresponsive.
//
// Grounded on attilabuti-k-bucket/kbucket.go's Add/split logic, generalized
// with a replacement cache and a lock/stale state machine that
// attilabuti-k-bucket does not have (it instead emits "kbucket.ping" and
// lets the caller decide whether to retry -- kept here as an event too).
type KBucket struct {
	localId Id
	// pathId is the bit path that led to this bucket; equal to localId only
	// for buckets on localId's own path -- see validateMembership.
	pathId Id
	prefix int // number of leading bits this bucket's ids share with pathId

	live  *NodeLeastRecentSet
	cache *NodeMostRecentSet

	locked map[string]struct{} // id.String() -> present means bypass live on Touch

	lastUpdateTime time.Time
	lastTouchTime  time.Time

	emitter *eventemitter.Emitter
}

func newKBucket(localId, pathId Id, prefix, k, c int, emitter *eventemitter.Emitter) *KBucket {
	return &KBucket{
		localId: localId,
		pathId:  pathId,
		prefix:  prefix,
		live:    NewNodeLeastRecentSet(localId, k),
		cache:   NewNodeMostRecentSet(localId, c),
		locked:  make(map[string]struct{}),
		emitter: emitter,
	}
}

// validateMembership checks node.Id against pathId, not localId: once a
// bucket has split off localId's own path, its members' shared prefix with
// localId is frozen at the depth the split happened -- it can never grow --
// so only the bucket's own fixed path is a sound membership test.
func (b *KBucket) validateMembership(node Node) error {
	if node.Id.Equal(b.localId) {
		return &InvalidIdError{Reason: "cannot touch the local node id"}
	}
	if node.Id.BitLen() != b.localId.BitLen() {
		return &InvalidIdError{Reason: "node id bit length does not match local id"}
	}
	if !node.Id.SharesPrefixWith(b.pathId, b.prefix) {
		return &InvalidIdError{Reason: "node id does not belong to this bucket's prefix"}
	}
	return nil
}

// Touch tries live first, then the cache, returning NO_CHANGE if both
// reject the newcomer -- the caller (KBucketTree) uses that to decide
// whether to split.
func (b *KBucket) Touch(t time.Time, node Node) (KBucketChangeSet, error) {
	if err := b.validateMembership(node); err != nil {
		return NoKBucketChange, err
	}

	// A link conflict against either set must fail the whole touch before
	// anything is mutated -- checking only the set Touch lands in first
	// would let a conflicting entry sit untouched in the other set while
	// this one commits (invariant 5 says a node is never simultaneously in
	// both; a link conflict must never be how that gets violated).
	if existing, ok := b.live.Get(node.Id); ok && existing.Node.sameIdDifferentLink(node) {
		return NoKBucketChange, &LinkConflictError{Id: node.Id, ExistingLink: existing.Node.Link, NewLink: node.Link}
	}
	if existing, ok := b.cache.Get(node.Id); ok && existing.Node.sameIdDifferentLink(node) {
		return NoKBucketChange, &LinkConflictError{Id: node.Id, ExistingLink: existing.Node.Link, NewLink: node.Link}
	}

	idKey := node.Id.String()
	_, isLocked := b.locked[idKey]

	var bucketChange ActivityChangeSet
	var err error

	if !isLocked {
		bucketChange, err = b.live.Touch(t, node)
		if err != nil {
			return NoKBucketChange, err
		}
	}

	var cacheChange ActivityChangeSet
	if isLocked || bucketChange.IsEmpty() {
		cacheChange, err = b.cache.Touch(t, node)
		if err != nil {
			return NoKBucketChange, err
		}
	} else {
		// Live admitted the node; it must not simultaneously sit in the
		// cache (invariant 5). The link-conflict check above already ruled
		// out a mismatch, so this removal cannot fail.
		cacheChange, err = b.cache.Remove(node)
		if err != nil {
			return NoKBucketChange, err
		}
	}

	if !bucketChange.IsEmpty() || !cacheChange.IsEmpty() {
		b.lastUpdateTime = t
	}
	b.lastTouchTime = t

	cs := KBucketChangeSet{BucketChange: bucketChange, CacheChange: cacheChange}
	if b.emitter != nil && !cs.IsEmpty() {
		b.emitter.Emit("kbucket.touched", b.prefix, cs)
	}
	return cs, nil
}

// LiveIsFull reports whether the live set is at capacity -- used by the
// tree to decide whether a NO_CHANGE touch result (live and cache both
// refused) means "split me" or a refusal reported via kbucket.ping.
func (b *KBucket) LiveIsFull() bool {
	return b.live.Size() >= b.live.MaxSize()
}

// EmitPing notifies the emitter (if any) that a touch was refused because
// the bucket is full and not splittable.
func (b *KBucket) EmitPing(candidate Node, pingCount int) {
	if b.emitter == nil {
		return
	}
	dump := b.live.Dump()
	if pingCount > len(dump) {
		pingCount = len(dump)
	}
	oldest := make([]Node, pingCount)
	for i := 0; i < pingCount; i++ {
		oldest[i] = dump[i].Node
	}
	b.emitter.Emit("kbucket.ping", oldest, candidate)
}

// Stale marks node unresponsive. node must currently be live.
func (b *KBucket) Stale(node Node) (KBucketChangeSet, error) {
	if !b.live.Contains(node.Id) {
		return NoKBucketChange, &BadOperationError{Op: "stale", Id: node.Id}
	}

	removedChange, err := b.live.Remove(node)
	if err != nil {
		return NoKBucketChange, err
	}

	cacheDump := b.cache.Dump()
	if len(cacheDump) == 0 {
		b.locked[node.Id.String()] = struct{}{}
		return KBucketChangeSet{BucketChange: removedChange}, nil
	}

	promoted := cacheDump[len(cacheDump)-1]
	cacheRemoveChange, err := b.cache.Remove(promoted.Node)
	if err != nil {
		return NoKBucketChange, err
	}

	liveAddChange, err := b.live.Touch(promoted.Time, promoted.Node)
	if err != nil {
		return NoKBucketChange, err
	}

	bucketChange := mergeActivityChangeSets(removedChange, liveAddChange)
	return KBucketChangeSet{BucketChange: bucketChange, CacheChange: cacheRemoveChange}, nil
}

// Lock is the explicit counterpart to Stale used directly by the Router:
// it requires node to currently be live, removes it from live, and marks
// its id so that future Touch calls bypass live and land only in the
// cache until Unlock is called. Unlike Stale, it never promotes a cache
// entry to fill the vacated slot -- the slot simply stays empty while
// locked.
func (b *KBucket) Lock(node Node) (KBucketChangeSet, error) {
	if !b.live.Contains(node.Id) {
		return NoKBucketChange, &BadOperationError{Op: "lock", Id: node.Id}
	}

	removed, err := b.live.Remove(node)
	if err != nil {
		return NoKBucketChange, err
	}
	b.locked[node.Id.String()] = struct{}{}
	return KBucketChangeSet{BucketChange: removed}, nil
}

// Unlock clears a previously locked id, restoring normal Touch routing.
// It does not itself re-admit anything into live; the next Touch for that
// id (or any other) does that through the ordinary path.
func (b *KBucket) Unlock(node Node) (KBucketChangeSet, error) {
	key := node.Id.String()
	if _, ok := b.locked[key]; !ok {
		return NoKBucketChange, &BadOperationError{Op: "unlock", Id: node.Id}
	}
	delete(b.locked, key)
	return NoKBucketChange, nil
}

// Dump returns (liveDump, cacheDump) snapshots.
func (b *KBucket) Dump() ([]Activity, []Activity) {
	return b.live.Dump(), b.cache.Dump()
}

// split partitions this bucket into two children along the next bit after
// b.prefix, preserving each entry's time order and the locked-id set
// The returned buckets are not yet wired into any
// tree node; the caller (KBucketTree) does that.
func (b *KBucket) split() (zeroChild, oneChild *KBucket) {
	zeroPath := b.pathId.WithBit(b.prefix, 0)
	onePath := b.pathId.WithBit(b.prefix, 1)
	zeroChild = newKBucket(b.localId, zeroPath, b.prefix+1, b.live.MaxSize(), b.cache.MaxSize(), b.emitter)
	oneChild = newKBucket(b.localId, onePath, b.prefix+1, b.live.MaxSize(), b.cache.MaxSize(), b.emitter)

	distribute := func(entries []Activity, toZero, toOne *NodeLeastRecentSet) {
		for _, e := range entries {
			target := toZero
			if e.Node.Id.Bit(b.prefix) == 1 {
				target = toOne
			}
			_, _ = target.Touch(e.Time, e.Node)
		}
	}
	distribute(b.live.Dump(), zeroChild.live, oneChild.live)

	distributeCache := func(entries []Activity, toZero, toOne *NodeMostRecentSet) {
		for _, e := range entries {
			target := toZero
			if e.Node.Id.Bit(b.prefix) == 1 {
				target = toOne
			}
			_, _ = target.Touch(e.Time, e.Node)
		}
	}
	distributeCache(b.cache.Dump(), zeroChild.cache, oneChild.cache)

	for idKey := range b.locked {
		// idKey is an Id.String() bit string; its bit at b.prefix tells us
		// which child it belongs to without needing to reconstruct the Id.
		if idKey[b.prefix] == '1' {
			oneChild.locked[idKey] = struct{}{}
		} else {
			zeroChild.locked[idKey] = struct{}{}
		}
	}

	if b.emitter != nil {
		b.emitter.Emit("kbucket.split", b.prefix)
	}

	return zeroChild, oneChild
}
