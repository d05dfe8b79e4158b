package util

import (
	"net/netip"
	"strings"
)

// AddressClass groups IP addresses by where they route. Issuer discovery only
// talks to AddressPublic hosts unless private networks are allowed.
type AddressClass int

const (
	AddressPublic AddressClass = iota
	AddressLoopback
	AddressPrivate
	AddressLinkLocal
	AddressMulticast
	AddressUnspecified
)

func (c AddressClass) String() string {
	switch c {
	case AddressPublic:
		return "public"
	case AddressLoopback:
		return "loopback"
	case AddressPrivate:
		return "private"
	case AddressLinkLocal:
		return "link_local"
	case AddressMulticast:
		return "multicast"
	case AddressUnspecified:
		return "unspecified"
	default:
		return "unknown"
	}
}

// ParseHostIP parses a URL hostname as an IP literal. Brackets and IPv6 zones
// are accepted, and IPv4-mapped IPv6 addresses are reduced to IPv4 so
// ::ffff:10.0.0.1 classifies like 10.0.0.1. ok is false for DNS names.
func ParseHostIP(host string) (addr netip.Addr, ok bool) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

// Classify returns the class of addr. The invalid zero Addr is unspecified.
// Link-local covers 169.254.0.0/16, where cloud metadata services live.
func Classify(addr netip.Addr) AddressClass {
	switch {
	case !addr.IsValid(), addr.IsUnspecified():
		return AddressUnspecified
	case addr.IsLoopback():
		return AddressLoopback
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return AddressLinkLocal
	case addr.IsPrivate():
		return AddressPrivate
	case addr.IsMulticast():
		return AddressMulticast
	}
	return AddressPublic
}

// IsLoopbackHost reports whether a URL hostname (without port) is localhost
// or a loopback IP literal. 0.0.0.0 is not loopback.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	addr, ok := ParseHostIP(host)
	return ok && addr.IsLoopback()
}
