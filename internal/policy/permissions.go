package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/marksidell/dynips/internal/directory"
)

// PortRange is a protocol port range. For icmp, Begin and End of -1 mean all
// ICMP types.
type PortRange struct {
	Begin    int
	End      int
	Protocol string
}

func (r PortRange) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Protocol, r.Begin, r.End)
}

// DefaultRanges is the coverage of a group declared without ports.
func DefaultRanges() []PortRange {
	return []PortRange{
		{Begin: 0, End: 65535, Protocol: "tcp"},
		{Begin: 0, End: 65535, Protocol: "udp"},
		{Begin: -1, End: -1, Protocol: "icmp"},
	}
}

// Entry is one desired (range, cidr) permission. Observed is set while
// diffing against the live rules.
type Entry struct {
	Range    PortRange
	CIDR     string
	Observed bool
}

// Grant is a range together with the CIDRs to authorize or revoke on it.
type Grant struct {
	Range PortRange
	CIDRs []string
}

// Permissions is a table of port range to allowed CIDRs.
type Permissions struct {
	table map[PortRange]map[string]*Entry
}

func NewPermissions() *Permissions {
	return &Permissions{table: make(map[PortRange]map[string]*Entry)}
}

// AddRange declares r with no CIDRs yet.
func (p *Permissions) AddRange(r PortRange) {
	if _, ok := p.table[r]; !ok {
		p.table[r] = make(map[string]*Entry)
	}
}

// AddCIDR allows cidr on every declared range.
func (p *Permissions) AddCIDR(cidr string) {
	for r := range p.table {
		p.Add(r, cidr)
	}
}

// Add allows cidr on r, declaring r if needed.
func (p *Permissions) Add(r PortRange, cidr string) {
	p.AddRange(r)
	if _, ok := p.table[r][cidr]; !ok {
		p.table[r][cidr] = &Entry{Range: r, CIDR: cidr}
	}
}

// Observe marks (r, cidr) as present in the cloud and reports whether it is
// desired. Only exact range equality matches.
func (p *Permissions) Observe(r PortRange, cidr string) bool {
	e, ok := p.table[r][cidr]
	if !ok {
		return false
	}
	e.Observed = true
	return true
}

// ResetObserved clears every mark.
func (p *Permissions) ResetObserved() {
	for _, cidrs := range p.table {
		for _, e := range cidrs {
			e.Observed = false
		}
	}
}

// Unobserved returns the entries not yet marked, one Grant per range. Ranges
// and CIDRs are sorted.
func (p *Permissions) Unobserved() []Grant {
	var grants []Grant
	for _, r := range p.Ranges() {
		var cidrs []string
		for cidr, e := range p.table[r] {
			if !e.Observed {
				cidrs = append(cidrs, cidr)
			}
		}
		if len(cidrs) == 0 {
			continue
		}
		sort.Strings(cidrs)
		grants = append(grants, Grant{Range: r, CIDRs: cidrs})
	}
	return grants
}

// Ranges returns the declared ranges in a stable order.
func (p *Permissions) Ranges() []PortRange {
	ranges := make([]PortRange, 0, len(p.table))
	for r := range p.table {
		ranges = append(ranges, r)
	}
	SortRanges(ranges)
	return ranges
}

// Entries returns all desired entries, sorted by range then CIDR.
func (p *Permissions) Entries() []Entry {
	var out []Entry
	for _, r := range p.Ranges() {
		start := len(out)
		for _, e := range p.table[r] {
			out = append(out, *e)
		}
		sort.Slice(out[start:], func(i, j int) bool { return out[start+i].CIDR < out[start+j].CIDR })
	}
	return out
}

// SortRanges orders ranges by protocol, then begin, then end.
func SortRanges(ranges []PortRange) {
	sort.Slice(ranges, func(i, j int) bool {
		a, b := ranges[i], ranges[j]
		if a.Protocol != b.Protocol {
			return a.Protocol < b.Protocol
		}
		if a.Begin != b.Begin {
			return a.Begin < b.Begin
		}
		return a.End < b.End
	})
}

// SecurityGroup is the desired state of one cloud security group.
type SecurityGroup struct {
	Name        string
	ID          string
	Permissions *Permissions
}

// NewSecurityGroup declares the group's ranges from ports, or the default
// ranges when ports is empty.
func NewSecurityGroup(name, id string, ports []PortDef) *SecurityGroup {
	sg := &SecurityGroup{Name: name, ID: id, Permissions: NewPermissions()}
	if len(ports) == 0 {
		for _, r := range DefaultRanges() {
			sg.Permissions.AddRange(r)
		}
		return sg
	}
	for _, p := range ports {
		sg.Permissions.AddRange(p.Range())
	}
	return sg
}

// Resolver turns a host rule into addresses.
type Resolver interface {
	Resolve(ctx context.Context, host, ip string) []directory.Address
}

// Build constructs the desired security groups of doc. groupIDs maps cloud
// group names to IDs; declared groups missing from it are skipped with a
// warning. Invalid host rules and references to unknown groups are skipped
// the same way.
func Build(ctx context.Context, doc *Document, groupIDs map[string]string, resolver Resolver, log *slog.Logger) map[string]*SecurityGroup {
	if log == nil {
		log = slog.Default()
	}

	names := make([]string, 0, len(doc.SecurityGroups))
	for name := range doc.SecurityGroups {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make(map[string]*SecurityGroup, len(names))
	for _, name := range names {
		id, ok := groupIDs[name]
		if !ok {
			log.Warn("security group not found in cloud account", "group", name)
			continue
		}
		groups[name] = NewSecurityGroup(name, id, doc.SecurityGroups[name].Ports)
	}

	for _, rule := range doc.Hosts {
		if err := rule.Validate(); err != nil {
			log.Warn("invalid host rule", "rule", rule.String(), "error", err)
			continue
		}
		for _, addr := range resolver.Resolve(ctx, rule.Host, rule.IP) {
			for _, g := range rule.Groups {
				sg, ok := groups[g]
				if !ok {
					log.Warn("host rule references unknown group",
						"host", addr.Label, "cidr", addr.CIDR, "group", g)
					continue
				}
				sg.Permissions.AddCIDR(addr.CIDR)
			}
		}
	}
	return groups
}
