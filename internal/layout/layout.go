// Package layout implements the pure editor layout: which tabs sit in which
// of (at most two) panes, and which tab and pane are active.
//
// Every function returns a new Layout and leaves its input untouched, so a
// value handed out to readers can never change under them.
package layout

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/tabula/internal/apperr"
)

// TabID identifies an open tab. It is derived 1:1 from the note path.
type TabID string

// PaneID identifies a pane.
type PaneID string

// Disposition is the placement directive for opening a note.
type Disposition string

const (
	Replace    Disposition = "replace"
	SplitRight Disposition = "split-right"
	SplitDown  Disposition = "split-down"
)

// ParseDisposition validates a disposition coming from outside the process.
// An empty string means Replace.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(s); d {
	case "":
		return Replace, nil
	case Replace, SplitRight, SplitDown:
		return d, nil
	default:
		return "", fmt.Errorf("layout: disposition %q: %w", s, apperr.ErrInvalid)
	}
}

// Orientation describes how two panes are arranged.
type Orientation string

const (
	Single     Orientation = "single"
	Horizontal Orientation = "horizontal" // side by side, from split-right
	Vertical   Orientation = "vertical"   // stacked, from split-down
)

// MaxPanes is the number of panes a layout can hold.
const MaxPanes = 2

// FirstPaneID is the id of the pane in the initial layout.
const FirstPaneID PaneID = "pane-1"

// Pane is an ordered container of tabs. ActiveTab is empty when Tabs is.
type Pane struct {
	ID        PaneID  `json:"id"`
	Tabs      []TabID `json:"tabs"`
	ActiveTab TabID   `json:"active_tab_id,omitempty"`
}

// Layout is the whole-screen arrangement of panes.
type Layout struct {
	Panes       []Pane      `json:"panes"`
	ActivePane  PaneID      `json:"active_pane_id"`
	Orientation Orientation `json:"orientation"`
}

// Initial returns the canonical empty layout: one empty pane.
func Initial() Layout {
	return Layout{
		Panes:       []Pane{{ID: FirstPaneID, Tabs: []TabID{}}},
		ActivePane:  FirstPaneID,
		Orientation: Single,
	}
}

// Clone returns a deep copy of l.
func (l Layout) Clone() Layout {
	out := Layout{ActivePane: l.ActivePane, Orientation: l.Orientation}
	out.Panes = make([]Pane, len(l.Panes))
	for i, p := range l.Panes {
		out.Panes[i] = p.clone()
	}
	return out
}

func (p Pane) clone() Pane {
	tabs := make([]TabID, len(p.Tabs))
	copy(tabs, p.Tabs)
	p.Tabs = tabs
	return p
}

// Pane returns the pane with the given id.
func (l Layout) Pane(id PaneID) (Pane, bool) {
	if i := l.paneIndex(id); i >= 0 {
		return l.Panes[i].clone(), true
	}
	return Pane{}, false
}

// PaneOf returns the pane holding tab id.
func (l Layout) PaneOf(id TabID) (Pane, bool) {
	for _, p := range l.Panes {
		if slices.Contains(p.Tabs, id) {
			return p.clone(), true
		}
	}
	return Pane{}, false
}

// TabIDs returns every tab id in pane order.
func (l Layout) TabIDs() []TabID {
	var out []TabID
	for _, p := range l.Panes {
		out = append(out, p.Tabs...)
	}
	return out
}

// Active returns the active tab of the active pane, falling back to the
// first pane when the active pane pointer is stale.
func (l Layout) Active() TabID {
	if len(l.Panes) == 0 {
		return ""
	}
	i := l.paneIndex(l.ActivePane)
	if i < 0 {
		i = 0
	}
	return l.Panes[i].ActiveTab
}

func (l Layout) paneIndex(id PaneID) int {
	return slices.IndexFunc(l.Panes, func(p Pane) bool { return p.ID == id })
}

// WithActiveTab makes id the active tab of its pane and that pane active.
func WithActiveTab(l Layout, id TabID) (Layout, error) {
	out := l.Clone()
	for i := range out.Panes {
		if slices.Contains(out.Panes[i].Tabs, id) {
			out.Panes[i].ActiveTab = id
			out.ActivePane = out.Panes[i].ID
			return out, nil
		}
	}
	return l, fmt.Errorf("layout: tab %q: %w", id, apperr.ErrUnknownTab)
}

// WithActivePane makes id the active pane.
func WithActivePane(l Layout, id PaneID) (Layout, error) {
	if l.paneIndex(id) < 0 {
		return l, fmt.Errorf("layout: pane %q: %w", id, apperr.ErrUnknownPane)
	}
	out := l.Clone()
	out.ActivePane = id
	return out, nil
}

// Reorder replaces the tab order of a pane. order must be a permutation of
// the pane's current tabs.
func Reorder(l Layout, paneID PaneID, order []TabID) (Layout, error) {
	i := l.paneIndex(paneID)
	if i < 0 {
		return l, fmt.Errorf("layout: pane %q: %w", paneID, apperr.ErrUnknownPane)
	}
	if !isPermutation(l.Panes[i].Tabs, order) {
		return l, fmt.Errorf("layout: pane %q: %w", paneID, apperr.ErrInvalidOrder)
	}
	out := l.Clone()
	p := &out.Panes[i]
	p.Tabs = append(make([]TabID, 0, len(order)), order...)
	if !slices.Contains(p.Tabs, p.ActiveTab) {
		p.ActiveTab = firstTab(p.Tabs)
	}
	return out, nil
}

func isPermutation(have, order []TabID) bool {
	if len(have) != len(order) {
		return false
	}
	seen := make(map[TabID]int, len(have))
	for _, id := range have {
		seen[id]++
	}
	for _, id := range order {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func firstTab(tabs []TabID) TabID {
	if len(tabs) == 0 {
		return ""
	}
	return tabs[0]
}

// newPaneID returns a pane id not used in l. Tests may replace it.
var newPaneID = func(l Layout) PaneID {
	for {
		id := PaneID("pane-" + uuid.NewString()[:8])
		if l.paneIndex(id) < 0 {
			return id
		}
	}
}

// Validate reports the first broken layout invariant, if any.
func Validate(l Layout) error {
	var errs []error
	switch n := len(l.Panes); {
	case n == 0 || n > MaxPanes:
		return fmt.Errorf("layout: %d panes", n)
	case n == 1 && l.Orientation != Single:
		errs = append(errs, fmt.Errorf("layout: one pane with orientation %q", l.Orientation))
	case n == 2 && l.Orientation != Horizontal && l.Orientation != Vertical:
		errs = append(errs, fmt.Errorf("layout: two panes with orientation %q", l.Orientation))
	}
	if l.paneIndex(l.ActivePane) < 0 {
		errs = append(errs, fmt.Errorf("layout: active pane %q does not exist", l.ActivePane))
	}

	owner := make(map[TabID]PaneID)
	for _, p := range l.Panes {
		if len(p.Tabs) == 0 && p.ActiveTab != "" {
			errs = append(errs, fmt.Errorf("layout: empty pane %q has active tab %q", p.ID, p.ActiveTab))
		}
		if len(p.Tabs) > 0 && !slices.Contains(p.Tabs, p.ActiveTab) {
			errs = append(errs, fmt.Errorf("layout: pane %q active tab %q is not one of its tabs", p.ID, p.ActiveTab))
		}
		for _, id := range p.Tabs {
			if prev, dup := owner[id]; dup {
				errs = append(errs, fmt.Errorf("layout: tab %q in panes %q and %q", id, prev, p.ID))
			}
			owner[id] = p.ID
		}
	}
	return errors.Join(errs...)
}
