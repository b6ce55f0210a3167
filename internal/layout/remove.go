package layout

// RemoveTab takes id out of the layout and collapses empty panes.
//
// With two panes, any pane left empty is dropped; when nothing survives the
// result is Initial. A single surviving pane always has orientation Single.
// The active pane is kept when it survives, otherwise the first pane wins.
func RemoveTab(l Layout, id TabID) Layout {
	if len(l.Panes) == 0 {
		return Initial()
	}
	out := l.Clone()
	for i := range out.Panes {
		out.Panes[i].drop(id)
		if out.Panes[i].ActiveTab == "" {
			out.Panes[i].ActiveTab = firstTab(out.Panes[i].Tabs)
		}
	}
	return collapse(out)
}

func collapse(l Layout) Layout {
	if len(l.Panes) > 1 {
		kept := l.Panes[:0]
		for _, p := range l.Panes {
			if len(p.Tabs) > 0 {
				kept = append(kept, p)
			}
		}
		l.Panes = kept
	}
	if len(l.Panes) == 0 {
		return Initial()
	}
	if l.paneIndex(l.ActivePane) < 0 {
		l.ActivePane = l.Panes[0].ID
	}
	if len(l.Panes) == 1 {
		l.Orientation = Single
	}
	return l
}

// RenameTabs rewrites tab ids using the given substitution. Ids missing from
// the map are left alone.
func RenameTabs(l Layout, ids map[TabID]TabID) Layout {
	out := l.Clone()
	if len(ids) == 0 {
		return out
	}
	sub := func(id TabID) TabID {
		if to, ok := ids[id]; ok {
			return to
		}
		return id
	}
	for i := range out.Panes {
		p := &out.Panes[i]
		for j, id := range p.Tabs {
			p.Tabs[j] = sub(id)
		}
		if p.ActiveTab != "" {
			p.ActiveTab = sub(p.ActiveTab)
		}
	}
	return out
}
