package kademlia

import "time"

// NodeMostRecentSet is a bounded sequence of Activities ordered head
// (oldest) to tail (newest), biased toward keeping whoever was seen most
// recently. It backs the replacement cache inside a KBucket and the
// Router's near set.
//
// Newcomers are inserted after all existing entries with an equal time,
// so ties among same-timestamp entries resolve in arrival order.
type NodeMostRecentSet struct {
	baseId  Id
	entries []Activity
	maxSize int
}

// NewNodeMostRecentSet constructs a set anchored to baseId (used to reject
// touching the local node) with the given capacity.
func NewNodeMostRecentSet(baseId Id, maxSize int) *NodeMostRecentSet {
	if maxSize < 0 {
		panic("kademlia: NodeMostRecentSet maxSize must be >= 0")
	}
	return &NodeMostRecentSet{baseId: baseId, maxSize: maxSize}
}

// Touch records that node was observed at time t.
func (s *NodeMostRecentSet) Touch(t time.Time, node Node) (ActivityChangeSet, error) {
	if node.Id.BitLen() != s.baseId.BitLen() {
		return NoActivityChange, &InvalidIdError{Reason: "node id bit length does not match base id"}
	}
	if node.Id.Equal(s.baseId) {
		return NoActivityChange, &InvalidIdError{Reason: "cannot touch the local node id"}
	}

	oldEntry, err := s.removeExistingIfLinkMatches(node)
	if err != nil {
		return NoActivityChange, err
	}

	newEntry := Activity{Node: node, Time: t}
	s.insertOrdered(newEntry)

	var discarded *Activity
	if len(s.entries) > s.maxSize {
		d := s.entries[0]
		s.entries = s.entries[1:]
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

// Remove discards the entry for node, if present.
func (s *NodeMostRecentSet) Remove(node Node) (ActivityChangeSet, error) {
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

// Resize changes the capacity. Shrinking evicts the oldest entries
// (head-first) until the new capacity is met.
func (s *NodeMostRecentSet) Resize(newMax int) ActivityChangeSet {
	if newMax < 0 {
		panic("kademlia: NodeMostRecentSet maxSize must be >= 0")
	}

	discardCount := s.maxSize - newMax
	var removed []Activity
	for i := 0; i < discardCount && len(s.entries) > 0; i++ {
		removed = append(removed, s.entries[0])
		s.entries = s.entries[1:]
	}

	s.maxSize = newMax
	return ActivityChangeSet{Removed: removed}
}

// RemoveMostRecent pops up to count tail (newest) entries and returns them,
// oldest-first among the removed. count > Size is tolerated.
func (s *NodeMostRecentSet) RemoveMostRecent(count int) ActivityChangeSet {
	if count > len(s.entries) {
		count = len(s.entries)
	}
	if count <= 0 {
		return ActivityChangeSet{}
	}

	split := len(s.entries) - count
	removed := append([]Activity{}, s.entries[split:]...)
	s.entries = s.entries[:split:split]
	return ActivityChangeSet{Removed: removed}
}

// Dump returns a snapshot of all entries, head (oldest) to tail (newest).
func (s *NodeMostRecentSet) Dump() []Activity {
	out := make([]Activity, len(s.entries))
	copy(out, s.entries)
	return out
}

// Size returns the current number of entries.
func (s *NodeMostRecentSet) Size() int { return len(s.entries) }

// MaxSize returns the configured capacity.
func (s *NodeMostRecentSet) MaxSize() int { return s.maxSize }

// Get returns the Activity for id and true if present.
func (s *NodeMostRecentSet) Get(id Id) (Activity, bool) {
	for _, e := range s.entries {
		if e.Node.Id.Equal(id) {
			return e, true
		}
	}
	return Activity{}, false
}

// Contains reports whether id is present. It compares by id only and never
// inspects Link, so it cannot surface a link conflict; use Touch/Remove for
// that.
func (s *NodeMostRecentSet) Contains(id Id) bool {
	for _, e := range s.entries {
		if e.Node.Id.Equal(id) {
			return true
		}
	}
	return false
}

func (s *NodeMostRecentSet) removeExistingIfLinkMatches(node Node) (*Activity, error) {
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

// insertOrdered inserts newEntry keeping entries sorted head..tail by
// non-decreasing time, placing newEntry after any existing entries with an
// equal time.
func (s *NodeMostRecentSet) insertOrdered(newEntry Activity) {
	i := 0
	for i < len(s.entries) && !s.entries[i].Time.After(newEntry.Time) {
		i++
	}
	s.entries = append(s.entries, Activity{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = newEntry
}
