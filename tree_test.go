package kademlia

import (
	"testing"
	"time"

	"github.com/attilabuti/eventemitter/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKBucketTreeSplitsOnlyAlongLocalPath(t *testing.T) {
	local := mustId(t, 0x0, 4) // 0000
	tree := NewKBucketTree(local, 1, 0, nil)

	n1 := Node{Id: mustId(t, 0x8, 4), Link: "A"} // 1000
	n2 := Node{Id: mustId(t, 0x4, 4), Link: "B"} // 0100

	cs, err := tree.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)
	require.Len(t, cs.BucketChange.Added, 1)

	// live is full (k=1); n2 does not share n1's bucket so the root splits
	// and n2 lands in the new sibling leaf.
	cs, err = tree.Touch(time.Unix(2, 0), n2)
	require.NoError(t, err)
	require.Len(t, cs.BucketChange.Added, 1)
	assert.Equal(t, n2, cs.BucketChange.Added[0].Node)

	require.False(t, tree.root.isLeaf())
	assert.True(t, tree.root.zero.isLeaf())
	assert.True(t, tree.root.one.isLeaf())

	zeroLive, _ := tree.root.zero.leaf.Dump()
	oneLive, _ := tree.root.one.leaf.Dump()
	require.Len(t, zeroLive, 1)
	require.Len(t, oneLive, 1)
	assert.Equal(t, n2, zeroLive[0].Node)
	assert.Equal(t, n1, oneLive[0].Node)
}

func TestKBucketTreeEmitsPingWhenOffPathBucketFull(t *testing.T) {
	local := mustId(t, 0x0, 4) // 0000
	em := eventemitter.New()
	tree := NewKBucketTree(local, 1, 0, em)

	// Force a split so there is an off-path leaf (prefix 1, the "one" side)
	// that cannot split further under localId's own path.
	n1 := Node{Id: mustId(t, 0x8, 4), Link: "A"} // 1000
	n2 := Node{Id: mustId(t, 0x4, 4), Link: "B"} // 0100
	_, err := tree.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)
	_, err = tree.Touch(time.Unix(2, 0), n2)
	require.NoError(t, err)

	var pinged bool
	em.On("kbucket.ping", func(old []Node, candidate Node) {
		pinged = true
	})

	n3 := Node{Id: mustId(t, 0x9, 4), Link: "C"} // 1001, shares the "one" leaf with n1
	cs, err := tree.Touch(time.Unix(3, 0), n3)
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
	assert.True(t, pinged)
}

func TestKBucketTreeFindOrdersByXorDistance(t *testing.T) {
	local := mustId(t, 0x0, 4) // 0000
	tree := NewKBucketTree(local, 4, 0, nil) // room for all four, no split

	nodes := []Node{
		{Id: mustId(t, 0x1, 4), Link: "0001"},
		{Id: mustId(t, 0x2, 4), Link: "0010"},
		{Id: mustId(t, 0x4, 4), Link: "0100"},
		{Id: mustId(t, 0x8, 4), Link: "1000"},
	}
	for i, n := range nodes {
		_, err := tree.Touch(time.Unix(int64(i), 0), n)
		require.NoError(t, err)
	}

	got, err := tree.Find(mustId(t, 0x1, 4), 3, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0001", got[0].Link)
	assert.Equal(t, "0010", got[1].Link)
	assert.Equal(t, "0100", got[2].Link)
}

func TestKBucketTreeFindOrdersByXorDistanceAcrossSplitBuckets(t *testing.T) {
	local := mustId(t, 0x0, 4) // 0000
	tree := NewKBucketTree(local, 1, 0, nil) // forces splits as nodes collide

	nodes := []Node{
		{Id: mustId(t, 0x1, 4), Link: "0001"},
		{Id: mustId(t, 0x2, 4), Link: "0010"},
		{Id: mustId(t, 0x4, 4), Link: "0100"},
		{Id: mustId(t, 0x8, 4), Link: "1000"},
	}
	for i, n := range nodes {
		_, err := tree.Touch(time.Unix(int64(i), 0), n)
		require.NoError(t, err)
	}

	got, err := tree.Find(mustId(t, 0x1, 4), 3, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0001", got[0].Link)
	assert.Equal(t, "0010", got[1].Link)
	assert.Equal(t, "0100", got[2].Link)
}

func TestKBucketTreeFindIncludesStaleWhenRequested(t *testing.T) {
	local := mustId(t, 0x0, 4)
	tree := NewKBucketTree(local, 1, 1, nil)

	n1 := Node{Id: mustId(t, 0x1, 4), Link: "live"}
	n2 := Node{Id: mustId(t, 0x2, 4), Link: "cached"}
	_, err := tree.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)
	_, err = tree.Touch(time.Unix(2, 0), n2)
	require.NoError(t, err)

	withoutStale, err := tree.Find(mustId(t, 0x0, 4), 5, false)
	require.NoError(t, err)
	withStale, err := tree.Find(mustId(t, 0x0, 4), 5, true)
	require.NoError(t, err)
	assert.Len(t, withoutStale, 1)
	assert.Len(t, withStale, 2)
}

func TestKBucketTreeStaleRoutesToOwningLeaf(t *testing.T) {
	local := mustId(t, 0x0, 4)
	tree := NewKBucketTree(local, 1, 1, nil)

	n1 := Node{Id: mustId(t, 0x1, 4), Link: "A"}
	n2 := Node{Id: mustId(t, 0x2, 4), Link: "B"}
	_, err := tree.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)
	_, err = tree.Touch(time.Unix(2, 0), n2)
	require.NoError(t, err)

	cs, err := tree.Stale(n1)
	require.NoError(t, err)
	assert.NotEmpty(t, cs.BucketChange.Removed)
	assert.NotEmpty(t, cs.BucketChange.Added) // n2 promoted from cache

	got, err := tree.Find(mustId(t, 0x0, 4), 5, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n2, got[0])
}
