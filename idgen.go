package kademlia

import (
	"crypto/rand"
	"crypto/sha1"
)

// GenerateRandomBytes returns n securely generated random bytes. It
// returns an error if the system's secure random number generator fails,
// in which case the caller should not continue.
//
// Kept from attilabuti-k-bucket/utils.go's random-id helper,
// useful for tests, demos, and any collaborator that needs to mint a
// fresh peer id without importing crypto/rand itself.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateId generates a random bitLen-bit Id by hashing securely
// generated random bytes with SHA-1 and truncating to the requested
// length. bitLen must fit within a SHA-1 digest (<= 160 bits); larger ids
// fall back to drawing raw random bytes directly.
func GenerateId(bitLen int) (Id, error) {
	byteLen := (bitLen + 7) / 8

	var raw []byte
	if byteLen <= sha1.Size {
		seed, err := GenerateRandomBytes(sha1.Size)
		if err != nil {
			return Id{}, err
		}
		digest := sha1.Sum(seed)
		raw = digest[:byteLen]
	} else {
		b, err := GenerateRandomBytes(byteLen)
		if err != nil {
			return Id{}, err
		}
		raw = b
	}

	return NewId(raw, bitLen)
}
