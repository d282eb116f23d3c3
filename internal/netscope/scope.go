// Package netscope decides whether a destination address is worth tracking.
package netscope

import (
	"net/netip"
	"strings"
)

var reservedV4 = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

var reservedV6 = []netip.Prefix{
	netip.MustParsePrefix("fc00::/7"),  // unique local
	netip.MustParsePrefix("fe80::/10"), // link-local
	netip.MustParsePrefix("ff00::/8"),  // multicast
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPrivateOrReserved reports whether address is not globally routable.
// Anything that does not parse as an IP is treated as private.
func IsPrivateOrReserved(address string) bool {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	if address == "" {
		return true
	}

	addr, err := netip.ParseAddr(address)
	if err != nil {
		return true
	}
	// strip zone and map ::ffff:a.b.c.d back to v4
	addr = addr.WithZone("").Unmap()

	if addr.Is4() {
		if addr.As4()[3] == 255 {
			return true
		}
		return inAny(addr, reservedV4)
	}

	if addr.IsUnspecified() || addr.IsLoopback() {
		return true
	}
	return inAny(addr, reservedV6)
}

// IsPublic is the inverse of IsPrivateOrReserved.
func IsPublic(address string) bool {
	return !IsPrivateOrReserved(address)
}

func inAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
