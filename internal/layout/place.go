package layout

import (
	"fmt"
	"slices"
)

// Place puts tab id into the layout according to d.
//
// The tab is first removed from wherever it already sits, so a tab never
// appears twice. Replace appends it to the active pane. A split appends it to
// a new second pane, or to the existing second pane when there already are
// two. The placed tab always becomes the active tab of its target pane and
// goes to the end of that pane's tab list.
func Place(l Layout, id TabID, d Disposition) Layout {
	if len(l.Panes) == 0 {
		l = Initial()
	}
	out := l.Clone()
	if out.Orientation == "" {
		out.Orientation = Single
	}

	for i := range out.Panes {
		out.Panes[i].drop(id)
	}

	var target int
	switch d {
	case Replace:
		target = max(out.paneIndex(out.ActivePane), 0)
		if len(out.Panes) == 1 {
			out.Orientation = Single
		}
	case SplitRight, SplitDown:
		out.Orientation = Horizontal
		if d == SplitDown {
			out.Orientation = Vertical
		}
		if len(out.Panes) < MaxPanes {
			out.Panes = append(out.Panes, Pane{ID: newPaneID(out), Tabs: []TabID{}})
		}
		target = 1
	default:
		panic(fmt.Sprintf("layout: unknown disposition %q", d))
	}

	p := &out.Panes[target]
	if !slices.Contains(p.Tabs, id) {
		p.Tabs = append(p.Tabs, id)
	}
	p.ActiveTab = id
	out.ActivePane = p.ID

	for i := range out.Panes {
		if len(out.Panes[i].Tabs) > 0 && out.Panes[i].ActiveTab == "" {
			out.Panes[i].ActiveTab = out.Panes[i].Tabs[0]
		}
	}
	return out
}

// drop removes id from the pane, moving the active tab to the first
// remaining tab when id was active.
func (p *Pane) drop(id TabID) {
	if !slices.Contains(p.Tabs, id) {
		return
	}
	p.Tabs = slices.DeleteFunc(p.Tabs, func(t TabID) bool { return t == id })
	if p.ActiveTab == id {
		p.ActiveTab = firstTab(p.Tabs)
	}
}
