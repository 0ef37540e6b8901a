package tui

import (
	"fmt"
	"time"

	"charm.land/lipgloss/v2"
	ltable "charm.land/lipgloss/v2/table"

	"github.com/marksidell/dynips/internal/lifecycle"
	"github.com/marksidell/dynips/internal/reconcile"
	"github.com/marksidell/dynips/internal/tui/theme"
	"github.com/marksidell/dynips/internal/utils"
)

func newTable(headers ...string) *ltable.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.MutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return header
			}
			return cell
		})
}

// HostsTable renders records with their effective state.
func HostsTable(records []lifecycle.HostRecord, now time.Time, maxAge time.Duration) string {
	t := newTable("HOST", "IP", "STATE", "LAST SEEN", "AGE", "ERRORS")
	for _, r := range records {
		t.Row(
			r.Name,
			orDash(r.IP),
			theme.RenderStatus(string(r.State(now, maxAge))),
			utils.TimeOrDash(r.LastModified.Local(), utils.DateTime),
			utils.AgeOrDash(r.LastModified, now),
			fmt.Sprint(r.Errors),
		)
	}
	return t.String()
}

// ChangesTable renders a reconciliation changeset, one row per (range, cidr).
// Groups that failed are listed with their error.
func ChangesTable(res reconcile.Result) string {
	t := newTable("GROUP", "GROUP ID", "ACTION", "PROTOCOL", "PORTS", "CIDR")
	for _, c := range res.Changes() {
		t.Row(
			c.Group,
			c.GroupID,
			theme.RenderStatus(c.Action),
			c.Range.Protocol,
			fmt.Sprintf("%d-%d", c.Range.Begin, c.Range.End),
			c.CIDR,
		)
	}
	out := t.String()

	if failed := res.Failed(); len(failed) > 0 {
		ft := newTable("GROUP", "GROUP ID", "ERROR")
		for _, g := range failed {
			ft.Row(g.Name, g.ID, g.Err.Error())
		}
		out += "\n" + errorStyle.Render("Failed groups") + "\n" + ft.String()
	}
	return out
}
