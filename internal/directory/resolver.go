package directory

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// Address is a resolved allow-list entry.
type Address struct {
	Label string
	CIDR  string
}

// privateRanges holds addresses that host-derived lookups are never allowed
// to contribute. Dynamic registrations sometimes report a LAN address.
var privateRanges = func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	b.AddPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	b.AddPrefix(netip.MustParsePrefix("192.168.0.0/16"))
	s, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return s
}()

// Resolver resolves policy host references against one snapshot of the
// live directory.
type Resolver struct {
	live   map[string][]HostIP
	lookup LookupFunc
	log    *slog.Logger
}

func NewResolver(live map[string][]HostIP, lookup LookupFunc, log *slog.Logger) *Resolver {
	if lookup == nil {
		lookup = SystemLookup
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{live: live, lookup: lookup, log: log}
}

// Resolve turns one policy entry into CIDRs. host is either an exact hostname
// or "<root>*"; ip is a literal address or CIDR used when host is empty.
// Failures are logged and yield no addresses.
func (r *Resolver) Resolve(ctx context.Context, host, ip string) []Address {
	if host == "" {
		if ip == "" {
			return nil
		}
		return []Address{{Label: ip, CIDR: asCIDR(ip)}}
	}

	var found []Address
	if root, ok := strings.CutSuffix(host, "*"); ok {
		found = r.wildcard(root)
	} else {
		found = r.exact(ctx, host)
	}

	public := found[:0]
	for _, a := range found {
		p, err := netip.ParsePrefix(a.CIDR)
		if err != nil {
			r.log.Warn("ignoring unparseable address from host lookup",
				"entry", host, "host", a.Label, "cidr", a.CIDR)
			continue
		}
		if privateRanges.ContainsPrefix(p) {
			r.log.Warn("ignoring private address from host lookup",
				"entry", host, "host", a.Label, "cidr", a.CIDR)
			continue
		}
		public = append(public, a)
	}
	return public
}

func (r *Resolver) wildcard(root string) []Address {
	hosts := r.live[strings.ToLower(root)]
	if len(hosts) == 0 {
		r.log.Warn("dynamic user has no live hostnames", "root", root)
		return nil
	}

	out := make([]Address, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, Address{Label: h.Host, CIDR: h.IP + "/32"})
	}
	return out
}

func (r *Resolver) exact(ctx context.Context, host string) []Address {
	addrs, err := r.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		r.log.Error("failed to find IP for host", "host", host, "error", err)
		return nil
	}
	return []Address{{Label: host, CIDR: addrs[0].Unmap().String() + "/32"}}
}

func asCIDR(ip string) string {
	if strings.Contains(ip, "/") {
		return ip
	}
	return ip + "/32"
}
