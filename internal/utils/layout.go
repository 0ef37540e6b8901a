package utils

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Detail lays out a sectioned key/value listing, one line per call.
type Detail struct {
	lines []string
	label lipgloss.Style
	style lipgloss.Style
}

// NewDetail pads labels to labelWidth and renders labels and headings with style.
func NewDetail(labelWidth int, style lipgloss.Style) *Detail {
	return &Detail{label: style.Width(labelWidth), style: style}
}

// Section adds a "── title ───" heading.
func (d *Detail) Section(title string) {
	rule := strings.Repeat("─", max(40-len(title), 4))
	d.lines = append(d.lines, d.style.Render("  ── "+title+" "+rule))
}

func (d *Detail) Row(label, value string) {
	d.lines = append(d.lines, "  "+d.label.Render(label)+" "+value)
}

func (d *Detail) Blank() {
	d.lines = append(d.lines, "")
}

// String joins the lines, each newline-terminated.
func (d *Detail) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}
