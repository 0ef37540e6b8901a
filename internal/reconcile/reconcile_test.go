package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsec2 "github.com/marksidell/dynips/internal/aws/ec2"
	"github.com/marksidell/dynips/internal/directory"
	"github.com/marksidell/dynips/internal/policy"
)

type call struct {
	action  string
	groupID string
	rules   []awsec2.IngressRule
}

// mockFirewallAPI keeps live rules per group and applies authorize/revoke to
// them so consecutive passes see each other's effects.
type mockFirewallAPI struct {
	groups       []awsec2.SecurityGroup
	rules        map[string][]awsec2.IngressRule
	described    map[string][]awsec2.IngressRule // when set, an outdated view returned by DescribeIngress
	cidrErr      map[string]error                // fails single-rule authorize calls for a CIDR
	calls        []call
	describeErr  map[string]error
	revokeErr    map[string]error
	authorizeErr map[string]error
}

func newMockFirewall() *mockFirewallAPI {
	return &mockFirewallAPI{
		rules:        make(map[string][]awsec2.IngressRule),
		describeErr:  make(map[string]error),
		revokeErr:    make(map[string]error),
		authorizeErr: make(map[string]error),
	}
}

func (m *mockFirewallAPI) ListSecurityGroups(ctx context.Context) ([]awsec2.SecurityGroup, error) {
	return m.groups, nil
}

func (m *mockFirewallAPI) DescribeIngress(ctx context.Context, groupID string) ([]awsec2.IngressRule, error) {
	if err := m.describeErr[groupID]; err != nil {
		return nil, err
	}
	if rules, ok := m.described[groupID]; ok {
		return rules, nil
	}
	return m.rules[groupID], nil
}

func (m *mockFirewallAPI) has(groupID string, rule awsec2.IngressRule, cidr string) bool {
	for _, r := range m.rules[groupID] {
		for _, c := range r.CIDRs {
			if ruleKey(r, c) == ruleKey(rule, cidr) {
				return true
			}
		}
	}
	return false
}

func (m *mockFirewallAPI) AuthorizeIngress(ctx context.Context, groupID string, rules []awsec2.IngressRule) error {
	m.calls = append(m.calls, call{"authorize", groupID, rules})
	if err := m.authorizeErr[groupID]; err != nil {
		return err
	}
	if len(rules) == 1 && len(rules[0].CIDRs) == 1 {
		if err := m.cidrErr[rules[0].CIDRs[0]]; err != nil {
			return err
		}
	}
	for _, r := range rules {
		for _, cidr := range r.CIDRs {
			if m.has(groupID, r, cidr) {
				return &smithy.GenericAPIError{Code: "InvalidPermission.Duplicate"}
			}
		}
	}
	m.rules[groupID] = append(m.rules[groupID], rules...)
	return nil
}

func (m *mockFirewallAPI) RevokeIngress(ctx context.Context, groupID string, rules []awsec2.IngressRule) error {
	m.calls = append(m.calls, call{"revoke", groupID, rules})
	if err := m.revokeErr[groupID]; err != nil {
		return err
	}
	for _, r := range rules {
		for _, cidr := range r.CIDRs {
			if !m.has(groupID, r, cidr) {
				return &smithy.GenericAPIError{Code: "InvalidPermission.NotFound"}
			}
		}
	}
	drop := make(map[string]bool)
	for _, r := range rules {
		for _, cidr := range r.CIDRs {
			drop[ruleKey(r, cidr)] = true
		}
	}
	var kept []awsec2.IngressRule
	for _, r := range m.rules[groupID] {
		var cidrs []string
		for _, cidr := range r.CIDRs {
			if !drop[ruleKey(r, cidr)] {
				cidrs = append(cidrs, cidr)
			}
		}
		if len(cidrs) > 0 {
			r.CIDRs = cidrs
			kept = append(kept, r)
		}
	}
	m.rules[groupID] = kept
	return nil
}

func ruleKey(r awsec2.IngressRule, cidr string) string {
	return policy.PortRange{Begin: r.FromPort, End: r.ToPort, Protocol: r.Protocol}.String() + " " + cidr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func https() policy.PortRange {
	return policy.PortRange{Begin: 443, End: 443, Protocol: "tcp"}
}

func webGroup(cidrs ...string) *policy.SecurityGroup {
	sg := policy.NewSecurityGroup("web", "sg-web", []policy.PortDef{{Port: 443}})
	for _, c := range cidrs {
		sg.Permissions.AddCIDR(c)
	}
	return sg
}

func TestReconcile_Scenario(t *testing.T) {
	fw := newMockFirewall()
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"9.9.9.9/32"}},
	}

	res := New(fw, discardLogger()).Reconcile(context.Background(),
		map[string]*policy.SecurityGroup{"web": webGroup("1.2.3.4/32")}, false)

	require.Len(t, res.Groups, 1)
	assert.NoError(t, res.Groups[0].Err)
	assert.Equal(t, []Change{
		{Group: "web", GroupID: "sg-web", Action: ActionRemove, Range: https(), CIDR: "9.9.9.9/32"},
		{Group: "web", GroupID: "sg-web", Action: ActionAdd, Range: https(), CIDR: "1.2.3.4/32"},
	}, res.Changes())

	require.Len(t, fw.calls, 2)
	assert.Equal(t, "revoke", fw.calls[0].action)
	assert.Equal(t, "authorize", fw.calls[1].action)
	assert.Equal(t, []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"1.2.3.4/32"}},
	}, fw.calls[1].rules)
}

func TestReconcile_Idempotent(t *testing.T) {
	fw := newMockFirewall()
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"9.9.9.9/32"}},
	}
	groups := map[string]*policy.SecurityGroup{"web": webGroup("1.2.3.4/32", "5.6.7.8/32")}
	r := New(fw, discardLogger())

	first := r.Reconcile(context.Background(), groups, false)
	assert.Len(t, first.Changes(), 3)

	second := r.Reconcile(context.Background(), groups, false)
	assert.Empty(t, second.Changes())
	assert.Len(t, fw.calls, 2)
}

func TestDiff_SupersetIsReplaced(t *testing.T) {
	sg := policy.NewSecurityGroup("web", "sg-web", []policy.PortDef{{Port: 80}})
	sg.Permissions.AddCIDR("1.2.3.4/32")

	remove, add := Diff(sg, []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 80, ToPort: 90, CIDRs: []string{"1.2.3.4/32"}},
	})
	assert.Equal(t, []policy.Grant{
		{Range: policy.PortRange{Begin: 80, End: 90, Protocol: "tcp"}, CIDRs: []string{"1.2.3.4/32"}},
	}, remove)
	assert.Equal(t, []policy.Grant{
		{Range: policy.PortRange{Begin: 80, End: 80, Protocol: "tcp"}, CIDRs: []string{"1.2.3.4/32"}},
	}, add)
}

func TestDiff_ResetsMarks(t *testing.T) {
	sg := webGroup("1.2.3.4/32")
	live := []awsec2.IngressRule{{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"1.2.3.4/32"}}}

	_, add := Diff(sg, live)
	assert.Empty(t, add)

	_, add = Diff(sg, nil)
	assert.Len(t, add, 1)
}

func TestReconcile_DryRun(t *testing.T) {
	fw := newMockFirewall()
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"9.9.9.9/32"}},
	}

	res := New(fw, discardLogger()).Reconcile(context.Background(),
		map[string]*policy.SecurityGroup{"web": webGroup("1.2.3.4/32")}, true)

	assert.True(t, res.DryRun)
	assert.Len(t, res.Changes(), 2)
	assert.Empty(t, fw.calls)
}

func TestReconcile_FailureIsolation(t *testing.T) {
	fw := newMockFirewall()
	fw.describeErr["sg-api"] = errors.New("throttled")
	fw.revokeErr["sg-db"] = errors.New("boom")
	fw.rules["sg-db"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 5432, ToPort: 5432, CIDRs: []string{"9.9.9.9/32"}},
	}

	groups := map[string]*policy.SecurityGroup{
		"api": policy.NewSecurityGroup("api", "sg-api", []policy.PortDef{{Port: 8080}}),
		"db":  policy.NewSecurityGroup("db", "sg-db", []policy.PortDef{{Port: 5432}}),
		"web": webGroup(),
	}
	for _, sg := range groups {
		sg.Permissions.AddCIDR("1.2.3.4/32")
	}

	res := New(fw, discardLogger()).Reconcile(context.Background(), groups, false)

	require.Len(t, res.Groups, 3)
	failed := res.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "api", failed[0].Name)
	assert.Equal(t, "db", failed[1].Name)

	for _, c := range fw.calls {
		if c.groupID == "sg-db" {
			assert.Equal(t, "revoke", c.action, "add must be skipped after a failed revoke")
		}
	}
	assert.Equal(t, []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"1.2.3.4/32"}},
	}, fw.rules["sg-web"])
}

func TestReconcile_AlreadyConverged(t *testing.T) {
	fw := newMockFirewall()
	fw.authorizeErr["sg-web"] = &smithy.GenericAPIError{Code: "InvalidPermission.Duplicate"}

	res := New(fw, discardLogger()).Reconcile(context.Background(),
		map[string]*policy.SecurityGroup{"web": webGroup("1.2.3.4/32")}, false)
	assert.Empty(t, res.Failed())
}

func TestReconcile_PartlyConvergedBatch(t *testing.T) {
	fw := newMockFirewall()
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"1.2.3.4/32", "8.8.8.8/32"}},
	}
	// Another writer added 1.2.3.4 and removed 9.9.9.9 after the describe.
	fw.described = map[string][]awsec2.IngressRule{"sg-web": {
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"8.8.8.8/32", "9.9.9.9/32"}},
	}}

	res := New(fw, discardLogger()).Reconcile(context.Background(),
		map[string]*policy.SecurityGroup{"web": webGroup("1.2.3.4/32", "5.6.7.8/32")}, false)
	require.Empty(t, res.Failed())

	var cidrs []string
	for _, r := range fw.rules["sg-web"] {
		cidrs = append(cidrs, r.CIDRs...)
	}
	assert.ElementsMatch(t, []string{"1.2.3.4/32", "5.6.7.8/32"}, cidrs)

	var revokes, authorizes int
	for _, c := range fw.calls {
		switch c.action {
		case "revoke":
			revokes++
		case "authorize":
			authorizes++
		}
	}
	assert.Equal(t, 3, revokes, "rejected batch then one call per rule")
	assert.Equal(t, 3, authorizes, "rejected batch then one call per rule")
}

func TestReconcile_RetryStopsOnRealError(t *testing.T) {
	fw := newMockFirewall()
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"1.2.3.4/32"}},
	}
	fw.described = map[string][]awsec2.IngressRule{"sg-web": nil}
	fw.cidrErr = map[string]error{"5.6.7.8/32": errors.New("throttled")}

	gr := New(fw, discardLogger()).ReconcileGroup(context.Background(), webGroup("1.2.3.4/32", "5.6.7.8/32"), false)
	require.Error(t, gr.Err)
	assert.Contains(t, gr.Err.Error(), "5.6.7.8/32")
	assert.Contains(t, gr.Err.Error(), "throttled")
}

type mockDirectory struct {
	live map[string][]directory.HostIP
}

func (m *mockDirectory) LiveHosts(ctx context.Context) (map[string][]directory.HostIP, error) {
	return m.live, nil
}

func (m *mockDirectory) Lookup() directory.LookupFunc {
	return func(ctx context.Context, host string) ([]netip.Addr, error) {
		return nil, errors.New("no such host")
	}
}

type staticSource string

func (s staticSource) Load(ctx context.Context) ([]byte, error) {
	return []byte(s), nil
}

func TestManagerRun(t *testing.T) {
	fw := newMockFirewall()
	fw.groups = []awsec2.SecurityGroup{
		{GroupID: "sg-web", Name: "web"},
		{GroupID: "sg-web2", Name: "web"},
	}
	fw.rules["sg-web"] = []awsec2.IngressRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDRs: []string{"9.9.9.9/32"}},
	}
	dir := &mockDirectory{live: map[string][]directory.HostIP{
		"alice": {{Host: "alice", IP: "1.2.3.4"}, {Host: "alice-home", IP: "192.168.1.5"}},
	}}
	src := staticSource(`{
		"security_groups": {"web": {"ports": [{"port": 443}]}},  # only web
		"hosts": [{"host": "alice*", "groups": ["web"]}]
	}`)

	res, err := NewManager(fw, dir, src, discardLogger()).Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Group: "web", GroupID: "sg-web", Action: ActionRemove, Range: https(), CIDR: "9.9.9.9/32"},
		{Group: "web", GroupID: "sg-web", Action: ActionAdd, Range: https(), CIDR: "1.2.3.4/32"},
	}, res.Changes())
}

func TestManagerRun_BadPolicy(t *testing.T) {
	_, err := NewManager(newMockFirewall(), &mockDirectory{}, staticSource(`{`), discardLogger()).
		Run(context.Background(), false)
	assert.ErrorIs(t, err, policy.ErrInvalidDocument)
}
