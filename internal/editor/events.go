package editor

import "github.com/starford/tabula/internal/layout"

// Event types emitted by the Store.
const (
	EventLayoutChanged = "layout.changed"
	EventTabLoaded     = "tab.loaded"
	EventTabSaved      = "tab.saved"
	EventTabError      = "tab.error"
	EventTabClosed     = "tab.closed"
	EventTabDirty      = "tab.dirty"
	EventReset         = "workspace.reset"
)

// Event describes a state change. Listeners re-read the store for details.
type Event struct {
	Type  string       `json:"type"`
	TabID layout.TabID `json:"tab_id,omitempty"`
	Path  string       `json:"path,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Notifier receives store events. Notify is called without the store lock
// held, in the goroutine that performed the change.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f(ev).
func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
