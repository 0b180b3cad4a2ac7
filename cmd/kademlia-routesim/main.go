// Command kademlia-routesim drives a Router with a randomly generated
// (seeded) sequence of touches and prints what it does; it has no scripted
// input mode. It exists to
// exercise the package's public API end to end -- the core package itself
// performs no I/O and reads no clock, so something has to supply both.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/attilabuti/eventemitter/v2"

	"github.com/dustan1/kademlia"
)

func main() {
	bitLen := flag.Int("bits", 32, "id bit length")
	peers := flag.Int("peers", 12, "number of random peers to touch")
	bucketSize := flag.Int("k", 20, "live slots per bucket")
	cacheSize := flag.Int("c", 3, "replacement cache slots per bucket")
	nearSetSize := flag.Int("near", 20, "near set size")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	localId, err := kademlia.GenerateId(*bitLen)
	if err != nil {
		log.Fatalf("generate local id: %v", err)
	}
	fmt.Printf("local id: %s\n", localId)

	emitter := eventemitter.New()
	emitter.On("kbucket.ping", func(old []kademlia.Node, candidate kademlia.Node) {
		fmt.Printf("  kbucket.ping: %d stale candidates ahead of %s\n", len(old), candidate)
	})
	emitter.On("kbucket.split", func(prefix int) {
		fmt.Printf("  kbucket.split: prefix %d\n", prefix)
	})
	emitter.On("router.touched", func(cs kademlia.KBucketChangeSet) {
		fmt.Printf("  router.touched: +%d -%d ~%d (bucket), +%d -%d ~%d (cache)\n",
			len(cs.BucketChange.Added), len(cs.BucketChange.Removed), len(cs.BucketChange.Updated),
			len(cs.CacheChange.Added), len(cs.CacheChange.Removed), len(cs.CacheChange.Updated))
	})
	emitter.On("router.staled", func(cs kademlia.KBucketChangeSet) {
		fmt.Printf("  router.staled\n")
	})

	router, err := kademlia.NewRouter(kademlia.RouterConfig{
		LocalId:     localId,
		BucketSize:  *bucketSize,
		CacheSize:   *cacheSize,
		NearSetSize: *nearSetSize,
		Emitter:     emitter,
	})
	if err != nil {
		log.Fatalf("new router: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	clock := time.Unix(0, 0)

	for i := 0; i < *peers; i++ {
		raw := make([]byte, (*bitLen+7)/8)
		rng.Read(raw)
		id, err := kademlia.NewId(raw, *bitLen)
		if err != nil {
			log.Fatalf("new id: %v", err)
		}
		if id.Equal(localId) {
			continue
		}

		node := kademlia.Node{Id: id, Link: fmt.Sprintf("127.0.0.1:%d", 1024+rng.Intn(64512))}
		clock = clock.Add(time.Duration(rng.Intn(1000)) * time.Millisecond)

		fmt.Printf("touch %s at %s\n", node, clock)
		if _, err := router.Touch(clock, node); err != nil {
			fmt.Fprintf(os.Stderr, "  touch rejected: %v\n", err)
		}
	}

	closest, err := router.Find(localId, 5)
	if err != nil {
		log.Fatalf("find: %v", err)
	}

	fmt.Println("closest peers to local id:")
	for i, n := range closest {
		addrPort, err := kademlia.LinkAddrPort(n.Link)
		if err != nil {
			fmt.Printf("  %d. %s\n", i+1, n)
			continue
		}
		fmt.Printf("  %d. %s at %s\n", i+1, n.Id, addrPort)
	}
}
