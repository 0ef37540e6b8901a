package ec2

import "strings"

// NormalizeProtocol converts AWS numeric protocol strings to the lower-case
// names used in policy documents.
func NormalizeProtocol(protocol string) string {
	switch protocol {
	case "6":
		return "tcp"
	case "17":
		return "udp"
	case "1":
		return "icmp"
	case "58":
		return "icmpv6"
	default:
		return strings.ToLower(protocol)
	}
}
