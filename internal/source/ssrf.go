package source

import "net/netip"

// isPrivateAddr reports whether addr belongs to a private, loopback, or
// link-local range. IPv4-mapped IPv6 addresses are unmapped and checked
// against the IPv4 rules, so ::ffff:10.0.0.1 cannot slip through.
func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		return isPrivateIPv4(addr)
	}
	return isPrivateIPv6(addr)
}

func isPrivateIPv4(addr netip.Addr) bool {
	octets := addr.As4()
	a, b := octets[0], octets[1]
	switch {
	case a == 10 || a == 127 || a == 0:
		return true
	case a == 169 && b == 254:
		return true
	case a == 172 && b >= 16 && b <= 31:
		return true
	case a == 192 && b == 168:
		return true
	}
	return false
}

func isPrivateIPv6(addr netip.Addr) bool {
	if addr.IsLoopback() {
		return true
	}
	raw := addr.As16()
	// fc00::/7 unique local addresses.
	if raw[0]&0xfe == 0xfc {
		return true
	}
	// fe80::/10 link local.
	if raw[0] == 0xfe && raw[1]&0xc0 == 0x80 {
		return true
	}
	return false
}
