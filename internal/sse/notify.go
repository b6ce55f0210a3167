package sse

import "github.com/starford/tabula/internal/editor"

// Notify relays an editor store event to every client under the event's own type.
func (b *Broker) Notify(ev editor.Event) {
	b.Publish(Event{Type: ev.Type, Data: ev})
}

var _ editor.Notifier = (*Broker)(nil)
