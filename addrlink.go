package kademlia

import "net/netip"

// LinkAddrPort is a convenience view of a Node's opaque Link string for
// collaborators that use host:port transport addresses -- the core itself
// never inspects Link.
//
// Kept from attilabuti-k-bucket/utils.go's CompareAddrPorts/AddrPort usage,
// adapted since this module's Node.Link is a plain string rather than a
// typed netip.AddrPort field.
func LinkAddrPort(link string) (netip.AddrPort, error) {
	return netip.ParseAddrPort(link)
}

// CompareLinkAddrPorts reports whether two Link strings parse to the same
// address and port, treating IPv4-mapped IPv6 the same as bare IPv4
// (mirrors attilabuti-k-bucket's CompareAddrPorts, which unmaps before
// comparing).
func CompareLinkAddrPorts(a, b string) bool {
	pa, err := netip.ParseAddrPort(a)
	if err != nil {
		return false
	}
	pb, err := netip.ParseAddrPort(b)
	if err != nil {
		return false
	}
	return pa.Addr().Unmap().Compare(pb.Addr().Unmap()) == 0 && pa.Port() == pb.Port()
}
