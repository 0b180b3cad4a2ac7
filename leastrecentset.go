package kademlia

import "time"

// NodeLeastRecentSet is a bounded sequence of Activities ordered head
// (oldest) to tail (newest), biased toward keeping whoever has been known
// longest -- the classic Kademlia bucket policy: old, still-responsive
// peers are never evicted in favour of a newcomer once the bucket is full.
//
// It mirrors NodeMostRecentSet's insertion order (both keep entries sorted
// non-decreasing by time) but evicts from the opposite end on overflow:
// MostRecentSet discards the oldest entry, LeastRecentSet discards the
// newest -- i.e. the newcomer itself, unless an incumbent with a later time
// lands after it during insertion (see Touch).
//
// Grounded on original_source/kademlia/.../NodeLeastRecentSet.java.
type NodeLeastRecentSet struct {
	baseId  Id
	entries []Activity
	maxSize int
}

// NewNodeLeastRecentSet constructs a set anchored to baseId with the given
// capacity. Unlike NodeMostRecentSet, touching baseId itself is not
// rejected here -- the KBucket layer above is what excludes the local id
// from ever reaching a bucket (carried from the Java source's
// commented-out validation).
func NewNodeLeastRecentSet(baseId Id, maxSize int) *NodeLeastRecentSet {
	if maxSize < 0 {
		panic("kademlia: NodeLeastRecentSet maxSize must be >= 0")
	}
	return &NodeLeastRecentSet{baseId: baseId, maxSize: maxSize}
}

// Touch records that node was observed at time t.
func (s *NodeLeastRecentSet) Touch(t time.Time, node Node) (ActivityChangeSet, error) {
	if node.Id.BitLen() != s.baseId.BitLen() {
		return NoActivityChange, &InvalidIdError{Reason: "node id bit length does not match base id"}
	}

	oldEntry, err := s.removeExistingIfLinkMatches(node)
	if err != nil {
		return NoActivityChange, err
	}

	newEntry := Activity{Node: node, Time: t}
	s.insertOrdered(newEntry)

	var discarded *Activity
	if len(s.entries) > s.maxSize {
		d := s.entries[len(s.entries)-1]
		s.entries = s.entries[:len(s.entries)-1]
		discarded = &d
	}

	if discarded != nil && discarded.Equal(newEntry) {
		return NoActivityChange, nil
	}

	if oldEntry != nil {
		return updatedChange(newEntry), nil
	}

	cs := addedChange(newEntry)
	if discarded != nil {
		cs.Removed = append(cs.Removed, *discarded)
	}
	return cs, nil
}

// Contains is a pure query: it never mutates state, even on a link
// conflict -- the Java source's `contains` has the scaffolding of a
// mutating iterator but never calls remove; this is intentional, not a
// latent bug.
func (s *NodeLeastRecentSet) Contains(id Id) bool {
	for _, e := range s.entries {
		if e.Node.Id.Equal(id) {
			return true
		}
	}
	return false
}

// Get returns the Activity for id and true if present.
func (s *NodeLeastRecentSet) Get(id Id) (Activity, bool) {
	for _, e := range s.entries {
		if e.Node.Id.Equal(id) {
			return e, true
		}
	}
	return Activity{}, false
}

// Remove discards the entry for node, if present.
func (s *NodeLeastRecentSet) Remove(node Node) (ActivityChangeSet, error) {
	for i, e := range s.entries {
		if !e.Node.Id.Equal(node.Id) {
			continue
		}
		if e.Node.sameIdDifferentLink(node) {
			return NoActivityChange, &LinkConflictError{Id: node.Id, ExistingLink: e.Node.Link, NewLink: node.Link}
		}
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		return removedChange(e), nil
	}
	return NoActivityChange, nil
}

// Resize changes the capacity. Shrinking evicts the newest entries
// (tail-first, the opposite end from NodeMostRecentSet.Resize) until the
// new capacity is met.
func (s *NodeLeastRecentSet) Resize(newMax int) ActivityChangeSet {
	if newMax < 0 {
		panic("kademlia: NodeLeastRecentSet maxSize must be >= 0")
	}

	discardCount := s.maxSize - newMax
	var removed []Activity
	for i := 0; i < discardCount && len(s.entries) > 0; i++ {
		last := len(s.entries) - 1
		removed = append(removed, s.entries[last])
		s.entries = s.entries[:last]
	}

	s.maxSize = newMax
	return ActivityChangeSet{Removed: removed}
}

// Dump returns a snapshot of all entries, head (oldest) to tail (newest).
func (s *NodeLeastRecentSet) Dump() []Activity {
	out := make([]Activity, len(s.entries))
	copy(out, s.entries)
	return out
}

// LatestActivityTime returns the time of the newest entry, or the zero
// time if the set is empty.
func (s *NodeLeastRecentSet) LatestActivityTime() time.Time {
	if len(s.entries) == 0 {
		return time.Time{}
	}
	return s.entries[len(s.entries)-1].Time
}

// Size returns the current number of entries.
func (s *NodeLeastRecentSet) Size() int { return len(s.entries) }

// MaxSize returns the configured capacity.
func (s *NodeLeastRecentSet) MaxSize() int { return s.maxSize }

func (s *NodeLeastRecentSet) removeExistingIfLinkMatches(node Node) (*Activity, error) {
	for i, e := range s.entries {
		if !e.Node.Id.Equal(node.Id) {
			continue
		}
		if e.Node.sameIdDifferentLink(node) {
			return nil, &LinkConflictError{Id: node.Id, ExistingLink: e.Node.Link, NewLink: node.Link}
		}
		old := e
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		return &old, nil
	}
	return nil, nil
}

func (s *NodeLeastRecentSet) insertOrdered(newEntry Activity) {
	i := 0
	for i < len(s.entries) && !s.entries[i].Time.After(newEntry.Time) {
		i++
	}
	s.entries = append(s.entries, Activity{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = newEntry
}
