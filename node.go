package kademlia

import (
	"fmt"
	"time"
)

// Node is a peer identified by Id, reachable at the opaque, non-empty Link
// string (typically a transport address, though the core never inspects
// its contents — see addrlink.go for the optional netip-aware helpers used
// by callers that do care).
type Node struct {
	Id   Id
	Link string
}

func (n Node) String() string {
	return fmt.Sprintf("Node{%s@%s}", n.Id, n.Link)
}

// Equal reports whether n and other have the same id and link. Id holds a
// byte slice internally so Node is not comparable with ==; use Equal.
func (n Node) Equal(other Node) bool {
	return n.Id.Equal(other.Id) && n.Link == other.Link
}

func (n Node) validate() error {
	if n.Link == "" {
		return &InvalidIdError{Reason: "node link must not be empty"}
	}
	return nil
}

// sameIdDifferentLink reports whether n and other share an id but disagree
// on link -- the definition of a link conflict.
func (n Node) sameIdDifferentLink(other Node) bool {
	return n.Id.Equal(other.Id) && n.Link != other.Link
}

// Activity is a timestamped observation of a Node. Time is a caller-supplied
// monotonic value; the core never reads a clock itself.
type Activity struct {
	Node Node
	Time time.Time
}

func (a Activity) Equal(other Activity) bool {
	return a.Node.Equal(other.Node) && a.Time.Equal(other.Time)
}

func (a Activity) String() string {
	return fmt.Sprintf("Activity{%s@%s}", a.Node, a.Time)
}
