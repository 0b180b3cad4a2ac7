/*
Package kademlia implements the routing core of a Kademlia node: the
in-memory structure a peer uses to remember other peers it has seen, to
keep that memory bounded, and to answer "who do I know that is closest to
this id."

Ported in spirit from github.com/attilabuti/k-bucket (itself a port of
Tristan Slominski's k-bucket: github.com/tristanls/k-bucket), generalized
from a single flat bucket-tree into the layered structure a real Kademlia
routing table needs: a live set and a replacement cache per bucket, a
router-level near set that retains the globally closest peers regardless
of which bucket they would otherwise land in, and an explicit stale/lock
state machine so a transport layer can report unresponsive peers.

The core is deterministic: it performs no I/O, reads no clock, and never
suspends. Every timestamp is supplied by the caller (see Router.Touch);
every mutation returns an ActivityChangeSet or KBucketChangeSet describing
exactly what was added, removed, or updated, so a caller can fan out side
effects (e.g. opening a probe to a newly admitted peer) without re-deriving
them. The same information is also available as events on an optional
*eventemitter.Emitter, for collaborators that would rather subscribe once
than inspect every return value:

	kbucket.ping
			old []Node:      the bucket's oldest live nodes, least-recently touched.
			candidate Node:  the newcomer that could not be admitted.
		Emitted when a touch is refused because the bucket is full and is not
		eligible to split. The candidate is not added to any set.

	kbucket.split
			prefix int: the bucket's prefix length before the split.
		Emitted when a bucket refines into two children along the local id's
		path.

	router.touched / router.staled
			ChangeSet: the change set the corresponding call returned.

	router.locked / router.unlocked
			Node: the node whose live slot was locked or unlocked.

The public entry point is Router: construct one with NewRouter, feed it
observations with Touch, report failures with Stale, and ask it who is
closest with Find.
*/
package kademlia
