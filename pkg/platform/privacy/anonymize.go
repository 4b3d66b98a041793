// Package privacy provides helpers for reducing identifying data before it is audited.
package privacy

import (
	"fmt"
	"net"
	"net/netip"
)

// AnonymizeIP truncates an address to its network so audit records keep
// network-level signal without identifying a host.
//
// IPv4 addresses keep their /24 ("192.168.1.47" -> "192.168.1.0"); IPv6 addresses
// keep their /48 ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::"). A trailing
// port is stripped first. Already anonymized values map to themselves.
//
// Returns "invalid" for unparseable input and "unknown" for empty input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.0", b[0], b[1], b[2])
	}

	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::", b[0], b[1], b[2], b[3], b[4], b[5])
}

