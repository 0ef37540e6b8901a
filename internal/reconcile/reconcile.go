// Package reconcile diffs desired security group permissions against the live
// cloud rules and applies the minimal changeset.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	awsec2 "github.com/marksidell/dynips/internal/aws/ec2"
	"github.com/marksidell/dynips/internal/policy"
)

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// EC2 error codes that mean the group already has the state we asked for.
const (
	codeDuplicate = "InvalidPermission.Duplicate"
	codeNotFound  = "InvalidPermission.NotFound"
)

// FirewallAPI is the subset of the EC2 client the reconciler needs.
type FirewallAPI interface {
	ListSecurityGroups(ctx context.Context) ([]awsec2.SecurityGroup, error)
	DescribeIngress(ctx context.Context, groupID string) ([]awsec2.IngressRule, error)
	AuthorizeIngress(ctx context.Context, groupID string, rules []awsec2.IngressRule) error
	RevokeIngress(ctx context.Context, groupID string, rules []awsec2.IngressRule) error
}

// Change is one (range, cidr) addition or removal.
type Change struct {
	Group   string
	GroupID string
	Action  string
	Range   policy.PortRange
	CIDR    string
}

// GroupResult is the outcome for one security group.
type GroupResult struct {
	Name   string
	ID     string
	Remove []policy.Grant
	Add    []policy.Grant
	Err    error
}

// Changes flattens the group's changeset, removals first.
func (g GroupResult) Changes() []Change {
	var out []Change
	for _, set := range []struct {
		action string
		grants []policy.Grant
	}{{ActionRemove, g.Remove}, {ActionAdd, g.Add}} {
		for _, grant := range set.grants {
			for _, cidr := range grant.CIDRs {
				out = append(out, Change{
					Group:   g.Name,
					GroupID: g.ID,
					Action:  set.action,
					Range:   grant.Range,
					CIDR:    cidr,
				})
			}
		}
	}
	return out
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	DryRun bool
	Groups []GroupResult
}

func (r Result) Changes() []Change {
	var out []Change
	for _, g := range r.Groups {
		out = append(out, g.Changes()...)
	}
	return out
}

// Failed returns the groups whose changeset could not be applied.
func (r Result) Failed() []GroupResult {
	var out []GroupResult
	for _, g := range r.Groups {
		if g.Err != nil {
			out = append(out, g)
		}
	}
	return out
}

// Diff sweeps the live rules against sg. Live (range, cidr) pairs the group
// does not want exactly are returned in remove; desired pairs never seen are
// returned in add. Marks on sg are reset first.
func Diff(sg *policy.SecurityGroup, live []awsec2.IngressRule) (remove, add []policy.Grant) {
	sg.Permissions.ResetObserved()

	stale := policy.NewPermissions()
	for _, rule := range live {
		r := policy.PortRange{Begin: rule.FromPort, End: rule.ToPort, Protocol: rule.Protocol}
		for _, cidr := range rule.CIDRs {
			if !sg.Permissions.Observe(r, cidr) {
				stale.Add(r, cidr)
			}
		}
	}
	return stale.Unobserved(), sg.Permissions.Unobserved()
}

type Reconciler struct {
	firewall FirewallAPI
	log      *slog.Logger
}

func New(firewall FirewallAPI, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{firewall: firewall, log: log}
}

// Reconcile processes every group in name order. A failure in one group is
// recorded in its result and does not affect the others.
func (r *Reconciler) Reconcile(ctx context.Context, groups map[string]*policy.SecurityGroup, dryRun bool) Result {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	res := Result{DryRun: dryRun, Groups: make([]GroupResult, 0, len(names))}
	for _, name := range names {
		gr := r.ReconcileGroup(ctx, groups[name], dryRun)
		if gr.Err != nil {
			r.log.Error("failed to update security group",
				"group", gr.Name, "group_id", gr.ID, "error", gr.Err)
		}
		res.Groups = append(res.Groups, gr)
	}
	return res
}

// ReconcileGroup diffs one group and, unless dryRun, revokes then authorizes.
// The add is skipped when the revoke fails.
func (r *Reconciler) ReconcileGroup(ctx context.Context, sg *policy.SecurityGroup, dryRun bool) GroupResult {
	gr := GroupResult{Name: sg.Name, ID: sg.ID}

	live, err := r.firewall.DescribeIngress(ctx, sg.ID)
	if err != nil {
		gr.Err = err
		return gr
	}
	gr.Remove, gr.Add = Diff(sg, live)

	r.logGrants(sg, ActionRemove, gr.Remove, dryRun)
	if !dryRun {
		if err := r.apply(ctx, sg, ActionRemove, gr.Remove); err != nil {
			gr.Err = err
			return gr
		}
	}

	r.logGrants(sg, ActionAdd, gr.Add, dryRun)
	if !dryRun {
		if err := r.apply(ctx, sg, ActionAdd, gr.Add); err != nil {
			gr.Err = err
		}
	}
	return gr
}

// apply issues grants as one batch. EC2 rejects a whole batch when any rule
// in it is already in place (authorize) or already gone (revoke); the batch is
// then retried one rule at a time so the remaining rules still land.
func (r *Reconciler) apply(ctx context.Context, sg *policy.SecurityGroup, action string, grants []policy.Grant) error {
	if len(grants) == 0 {
		return nil
	}

	issue := r.firewall.AuthorizeIngress
	converged := codeDuplicate
	if action == ActionRemove {
		issue = r.firewall.RevokeIngress
		converged = codeNotFound
	}

	err := issue(ctx, sg.ID, ingressRules(grants))
	if err == nil {
		return nil
	}
	if awsec2.ErrorCode(err) != converged {
		return fmt.Errorf("%s: %w", action, err)
	}

	r.log.Warn("security group partly converged, applying rules one by one",
		"group", sg.Name, "group_id", sg.ID, "action", action, "error", err)
	for _, g := range grants {
		for _, cidr := range g.CIDRs {
			one := ingressRules([]policy.Grant{{Range: g.Range, CIDRs: []string{cidr}}})
			err := issue(ctx, sg.ID, one)
			switch {
			case err == nil:
			case awsec2.ErrorCode(err) == converged:
				r.log.Warn("security group rule already converged",
					"group", sg.Name, "group_id", sg.ID, "action", action,
					"protocol", g.Range.Protocol, "from", g.Range.Begin, "to", g.Range.End, "cidr", cidr)
			default:
				return fmt.Errorf("%s %s %s: %w", action, g.Range, cidr, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) logGrants(sg *policy.SecurityGroup, action string, grants []policy.Grant, dryRun bool) {
	for _, g := range grants {
		for _, cidr := range g.CIDRs {
			r.log.Info("security group change",
				"group", sg.Name,
				"group_id", sg.ID,
				"action", action,
				"protocol", g.Range.Protocol,
				"from", g.Range.Begin,
				"to", g.Range.End,
				"cidr", cidr,
				"dry_run", dryRun,
			)
		}
	}
}

func ingressRules(grants []policy.Grant) []awsec2.IngressRule {
	rules := make([]awsec2.IngressRule, 0, len(grants))
	for _, g := range grants {
		rules = append(rules, awsec2.IngressRule{
			Protocol: g.Range.Protocol,
			FromPort: g.Range.Begin,
			ToPort:   g.Range.End,
			CIDRs:    g.CIDRs,
		})
	}
	return rules
}
