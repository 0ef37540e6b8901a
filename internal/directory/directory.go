// Package directory maps dynamic hostnames to addresses.
//
// Directory is the DNS side: one A record per host under the domain root,
// written with upsert semantics. A host whose address is cleared keeps its
// record, pointing at a placeholder address. Resolver turns policy host
// references into concrete CIDRs.
package directory

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"sort"
	"strings"

	awsroute53 "github.com/marksidell/dynips/internal/aws/route53"
	"github.com/marksidell/dynips/internal/statekey"
)

// DNSAPI is the subset of the Route 53 client the directory needs.
type DNSAPI interface {
	UpsertA(ctx context.Context, zoneID, name, ip string, ttl int64) (awsroute53.ChangeInfo, error)
	ListARecords(ctx context.Context, zoneID string) ([]awsroute53.ARecord, error)
}

// LookupFunc resolves a hostname to IPv4 addresses.
type LookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

// SystemLookup resolves through the system resolver.
func SystemLookup(ctx context.Context, host string) ([]netip.Addr, error) {
	return net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
}

// HostIP is a live dynamic host and its address.
type HostIP struct {
	Host string
	IP   string
}

type Options struct {
	ZoneID     string
	DomainRoot string
	DefaultIP  string // the "no address" placeholder
	TTL        int64
	Lookup     LookupFunc
}

type Directory struct {
	dns    DNSAPI
	opts   Options
	nameRe *regexp.Regexp
}

func New(dns DNSAPI, opts Options) *Directory {
	if opts.Lookup == nil {
		opts.Lookup = SystemLookup
	}
	opts.DomainRoot = strings.TrimSuffix(opts.DomainRoot, ".")
	return &Directory{
		dns:  dns,
		opts: opts,
		nameRe: regexp.MustCompile(`(?i)^` + statekey.HostPattern + `\.` +
			regexp.QuoteMeta(opts.DomainRoot) + `\.?$`),
	}
}

// FullHostname returns "<host>.<domainRoot>".
func (d *Directory) FullHostname(host string) string {
	return host + "." + d.opts.DomainRoot
}

// SetHostIP points host at ip. An empty ip writes the placeholder address.
func (d *Directory) SetHostIP(ctx context.Context, host, ip string) error {
	if ip == "" {
		ip = d.opts.DefaultIP
	}
	info, err := d.dns.UpsertA(ctx, d.opts.ZoneID, d.FullHostname(host), ip, d.opts.TTL)
	if err != nil {
		return err
	}
	if info.Status != "PENDING" && info.Status != "INSYNC" {
		return fmt.Errorf("directory: unexpected change status %q for %s", info.Status, host)
	}
	return nil
}

// ClearHostIP points host at the placeholder address.
func (d *Directory) ClearHostIP(ctx context.Context, host string) error {
	return d.SetHostIP(ctx, host, "")
}

// CurrentIP resolves host's fully qualified name.
func (d *Directory) CurrentIP(ctx context.Context, host string) (string, error) {
	addrs, err := d.opts.Lookup(ctx, d.FullHostname(host))
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("directory: no address for %s", d.FullHostname(host))
	}
	return addrs[0].String(), nil
}

// LiveHosts lists the hosts that currently have a real address, keyed by the
// user root of their name. Records pointing at the placeholder are excluded.
func (d *Directory) LiveHosts(ctx context.Context) (map[string][]HostIP, error) {
	records, err := d.dns.ListARecords(ctx, d.opts.ZoneID)
	if err != nil {
		return nil, err
	}

	live := make(map[string][]HostIP)
	for _, r := range records {
		m := d.nameRe.FindStringSubmatch(r.Name)
		if m == nil {
			continue
		}
		if r.Value == "" || r.Value == d.opts.DefaultIP {
			continue
		}
		root := strings.ToLower(m[d.nameRe.SubexpIndex("user")])
		live[root] = append(live[root], HostIP{
			Host: strings.ToLower(m[d.nameRe.SubexpIndex("host")]),
			IP:   r.Value,
		})
	}
	for _, hosts := range live {
		sort.Slice(hosts, func(i, j int) bool { return hosts[i].Host < hosts[j].Host })
	}
	return live, nil
}

// Lookup exposes the configured resolver for exact-name policy entries.
func (d *Directory) Lookup() LookupFunc {
	return d.opts.Lookup
}
