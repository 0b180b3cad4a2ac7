package kademlia

import (
	"testing"
	"time"

	"github.com/attilabuti/eventemitter/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type KBucketSuite struct {
	suite.Suite
	local Id
	b     *KBucket
}

func (s *KBucketSuite) SetupTest() {
	var err error
	s.local, err = IdFromUint64(0x0, 4) // 0000
	s.Require().NoError(err)
	s.b = newKBucket(s.local, s.local, 0, 1, 1, nil)
}

func TestKBucketSuite(t *testing.T) {
	suite.Run(t, new(KBucketSuite))
}

func (s *KBucketSuite) node(v uint64, link string) Node {
	id, err := IdFromUint64(v, 4)
	s.Require().NoError(err)
	return Node{Id: id, Link: link}
}

func (s *KBucketSuite) TestTouchAdmitsIntoLiveThenCache() {
	n1 := s.node(0x8, "A") // 1000
	n2 := s.node(0x9, "B") // 1001

	cs, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)
	s.Len(cs.BucketChange.Added, 1)

	cs, err = s.b.Touch(time.Unix(2, 0), n2) // live full (k=1) -> cache
	s.Require().NoError(err)
	s.Empty(cs.BucketChange.Added)
	s.Len(cs.CacheChange.Added, 1)
}

func (s *KBucketSuite) TestTouchRejectsNonMemberPrefix() {
	b := newKBucket(s.local, s.local, 1, 1, 1, nil) // prefix 1: only 0xxx ids (sharing bit 0 with local) belong
	n := s.node(0x8, "A")                  // 1000 shares 0 bits with local (0000) -> not a member
	_, err := b.Touch(time.Unix(1, 0), n)
	s.Error(err)
}

func (s *KBucketSuite) TestStalePromotesCache() {
	n1 := s.node(0x8, "A") // live
	n2 := s.node(0x9, "B") // cache, later time

	_, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)
	_, err = s.b.Touch(time.Unix(2, 0), n2)
	s.Require().NoError(err)

	cs, err := s.b.Stale(n1)
	s.Require().NoError(err)
	s.NotEmpty(cs.BucketChange.Removed)
	s.NotEmpty(cs.BucketChange.Added)
	s.NotEmpty(cs.CacheChange.Removed)

	live, cache := s.b.Dump()
	s.Require().Len(live, 1)
	s.Equal(n2, live[0].Node)
	s.Empty(cache)
}

func (s *KBucketSuite) TestStaleLocksWhenCacheEmpty() {
	n1 := s.node(0x8, "A")
	_, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)

	_, err = s.b.Stale(n1)
	s.Require().NoError(err)

	live, _ := s.b.Dump()
	s.Empty(live)

	// now a touch for n1 must go to cache only, since it's locked
	cs, err := s.b.Touch(time.Unix(2, 0), n1)
	s.Require().NoError(err)
	s.Empty(cs.BucketChange.Added)
	s.Len(cs.CacheChange.Added, 1)
}

func (s *KBucketSuite) TestStaleFailsIfNotLive() {
	n1 := s.node(0x8, "A")
	_, err := s.b.Stale(n1)
	s.Error(err)
	var bad *BadOperationError
	s.ErrorAs(err, &bad)
}

func (s *KBucketSuite) TestLockUnlock() {
	n1 := s.node(0x8, "A")
	n2 := s.node(0x9, "B")
	_, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)

	lockCs, err := s.b.Lock(n1)
	s.Require().NoError(err)
	s.NotEmpty(lockCs.BucketChange.Removed) // lock vacates n1's live slot

	live, _ := s.b.Dump()
	s.Empty(live)

	// n1 is locked: touching it now bypasses live and lands in the cache
	cs, err := s.b.Touch(time.Unix(2, 0), n1)
	s.Require().NoError(err)
	s.Empty(cs.BucketChange.Added)
	s.Len(cs.CacheChange.Added, 1)

	_, err = s.b.Unlock(n1)
	s.Require().NoError(err)

	// n1's slot is free again, so a different id is free to take it
	cs, err = s.b.Touch(time.Unix(3, 0), n2)
	s.Require().NoError(err)
	s.Len(cs.BucketChange.Added, 1)
}

// Reaching an id via lock/unlock so it ends up cached under its old link,
// then touching it again with a different link, must fail the whole touch
// rather than leave it live under the new link while the cache still holds
// the old one.
func (s *KBucketSuite) TestTouchLinkConflictAcrossLiveAndCacheLeavesNoPartialState() {
	n1 := s.node(0x8, "A")
	_, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)

	_, err = s.b.Lock(n1)
	s.Require().NoError(err)
	_, err = s.b.Touch(time.Unix(2, 0), n1) // bypasses live, lands in cache under "A"
	s.Require().NoError(err)
	_, err = s.b.Unlock(n1)
	s.Require().NoError(err)

	conflicting := s.node(0x8, "B")
	_, err = s.b.Touch(time.Unix(3, 0), conflicting)
	s.Require().Error(err)
	var lc *LinkConflictError
	s.ErrorAs(err, &lc)

	live, cache := s.b.Dump()
	s.Empty(live)
	s.Require().Len(cache, 1)
	s.Equal("A", cache[0].Node.Link)
}

func (s *KBucketSuite) TestLockFailsIfNotLive() {
	n1 := s.node(0x8, "A")
	_, err := s.b.Lock(n1)
	s.Error(err)
}

func (s *KBucketSuite) TestUnlockFailsIfNotLocked() {
	n1 := s.node(0x8, "A")
	_, err := s.b.Touch(time.Unix(1, 0), n1)
	s.Require().NoError(err)
	_, err = s.b.Unlock(n1)
	s.Error(err)
}

func TestKBucketSplitPreservesEntriesAndTimestamps(t *testing.T) {
	local := mustId(t, 0x0, 4) // 0000
	b := newKBucket(local, local, 0, 2, 0, nil)

	n1 := Node{Id: mustId(t, 0x8, 4), Link: "A"} // 1000
	n2 := Node{Id: mustId(t, 0x4, 4), Link: "B"} // 0100

	_, err := b.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)
	_, err = b.Touch(time.Unix(2, 0), n2)
	require.NoError(t, err)

	parentLive, parentCache := b.Dump()

	zero, one := b.split()
	zeroLive, zeroCache := zero.Dump()
	oneLive, oneCache := one.Dump()

	assert.Equal(t, 1, zero.prefix)
	assert.Equal(t, 1, one.prefix)

	combined := append(append([]Activity{}, zeroLive...), oneLive...)
	assert.ElementsMatch(t, parentLive, combined)
	combinedCache := append(append([]Activity{}, zeroCache...), oneCache...)
	assert.ElementsMatch(t, parentCache, combinedCache)

	// n1 (1xxx) routes to the child whose prefix bit is 1, n2 (0xxx) to 0.
	assert.Equal(t, n1, oneLive[0].Node)
	assert.Equal(t, n2, zeroLive[0].Node)
}

func TestKBucketEmitsPingOnFullUnsplittableBucket(t *testing.T) {
	local := mustId(t, 0x0, 4)
	em := eventemitter.New()
	b := newKBucket(local, local, 1, 1, 0, em) // prefix 1: members share bit 0 with local (0xxx)

	var pinged bool
	em.On("kbucket.ping", func(old []Node, candidate Node) {
		pinged = true
	})

	n1 := Node{Id: mustId(t, 0x1, 4), Link: "A"} // 0001
	n2 := Node{Id: mustId(t, 0x2, 4), Link: "B"} // 0010
	_, err := b.Touch(time.Unix(1, 0), n1)
	require.NoError(t, err)

	b.EmitPing(n2, 3)
	assert.True(t, pinged)
}
