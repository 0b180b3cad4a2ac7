package kademlia

import "fmt"

// LinkConflictError is returned when an operation referenced a node id
// that is already present in some set under a different link. No state
// is changed when this error is returned.
type LinkConflictError struct {
	Id           Id
	ExistingLink string
	NewLink      string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("kademlia: link conflict for id %s: existing link %q, incoming link %q", e.Id, e.ExistingLink, e.NewLink)
}

// InvalidIdError is returned for id-length mismatches or other structurally
// impossible ids. It is a programmer error surfaced synchronously; no
// state is changed.
type InvalidIdError struct {
	Reason string
}

func (e *InvalidIdError) Error() string {
	return fmt.Sprintf("kademlia: invalid id: %s", e.Reason)
}

// BadOperationError is returned when stale/lock target a node that is not
// currently in the relevant set's live entries, or unlock targets an id
// that is not currently locked.
type BadOperationError struct {
	Op string
	Id Id
}

func (e *BadOperationError) Error() string {
	if e.Op == "unlock" {
		return fmt.Sprintf("kademlia: %s: id %s is not locked", e.Op, e.Id)
	}
	return fmt.Sprintf("kademlia: %s: id %s is not live", e.Op, e.Id)
}
