package kademlia

// ActivityChangeSet is an immutable diff describing what entered, left, or
// was updated in a single set by one operation. No Activity appears in more
// than one of the three lists. The zero value, with all three lists empty,
// is the NO_CHANGE sentinel: a legitimate outcome, not an error.
type ActivityChangeSet struct {
	Added   []Activity
	Removed []Activity
	Updated []Activity
}

// NoActivityChange is the empty, "nothing happened" change set.
var NoActivityChange = ActivityChangeSet{}

// IsEmpty reports whether the change set carries no changes at all.
func (cs ActivityChangeSet) IsEmpty() bool {
	return len(cs.Added) == 0 && len(cs.Removed) == 0 && len(cs.Updated) == 0
}

func addedChange(a Activity) ActivityChangeSet {
	return ActivityChangeSet{Added: []Activity{a}}
}

func removedChange(a Activity) ActivityChangeSet {
	return ActivityChangeSet{Removed: []Activity{a}}
}

func updatedChange(a Activity) ActivityChangeSet {
	return ActivityChangeSet{Updated: []Activity{a}}
}

// merge combines two change sets from independent sets (e.g. tree + near
// set in Router.touch) into one, preserving each list's contents.
func mergeActivityChangeSets(a, b ActivityChangeSet) ActivityChangeSet {
	return ActivityChangeSet{
		Added:   append(append([]Activity{}, a.Added...), b.Added...),
		Removed: append(append([]Activity{}, a.Removed...), b.Removed...),
		Updated: append(append([]Activity{}, a.Updated...), b.Updated...),
	}
}

// KBucketChangeSet bundles the change sets produced by a KBucket's live
// set (bucket) and its replacement cache from a single operation.
type KBucketChangeSet struct {
	BucketChange ActivityChangeSet
	CacheChange  ActivityChangeSet
}

// NoKBucketChange is the empty, "nothing happened" KBucket change set.
var NoKBucketChange = KBucketChangeSet{}

// IsEmpty reports whether neither the bucket nor the cache changed.
func (cs KBucketChangeSet) IsEmpty() bool {
	return cs.BucketChange.IsEmpty() && cs.CacheChange.IsEmpty()
}
