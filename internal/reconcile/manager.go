package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marksidell/dynips/internal/directory"
	"github.com/marksidell/dynips/internal/policy"
)

// LiveDirectory supplies the live dynamic hosts and the resolver for exact
// hostnames.
type LiveDirectory interface {
	LiveHosts(ctx context.Context) (map[string][]directory.HostIP, error)
	Lookup() directory.LookupFunc
}

// Manager runs a full pass: load the policy, resolve hosts against the live
// directory, build the desired groups and reconcile them.
type Manager struct {
	firewall FirewallAPI
	dir      LiveDirectory
	source   policy.Source
	log      *slog.Logger
}

func NewManager(firewall FirewallAPI, dir LiveDirectory, source policy.Source, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{firewall: firewall, dir: dir, source: source, log: log}
}

// Run performs one pass. Errors are returned only when the pass cannot start;
// per-group failures are reported in the Result.
func (m *Manager) Run(ctx context.Context, dryRun bool) (Result, error) {
	doc, err := policy.Load(ctx, m.source)
	if err != nil {
		return Result{}, err
	}

	cloud, err := m.firewall.ListSecurityGroups(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: listing security groups: %w", err)
	}
	ids := make(map[string]string, len(cloud))
	for _, sg := range cloud {
		if prev, dup := ids[sg.Name]; dup {
			m.log.Warn("duplicate security group name, using first",
				"group", sg.Name, "group_id", prev, "ignored_id", sg.GroupID)
			continue
		}
		ids[sg.Name] = sg.GroupID
	}

	live, err := m.dir.LiveHosts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: listing live hosts: %w", err)
	}

	resolver := directory.NewResolver(live, m.dir.Lookup(), m.log)
	groups := policy.Build(ctx, doc, ids, resolver, m.log)

	res := New(m.firewall, m.log).Reconcile(ctx, groups, dryRun)
	m.log.Info("reconciliation finished",
		"groups", len(res.Groups),
		"changes", len(res.Changes()),
		"failed", len(res.Failed()),
		"dry_run", dryRun,
	)
	return res, nil
}
