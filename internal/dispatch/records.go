package dispatch

import (
	"sync"

	"toonbot/internal/model"
)

type recordKey struct {
	entityID   string
	kind       model.EventKind
	subEventID string
}

func keyOf(ev model.Event) recordKey {
	return recordKey{entityID: ev.EntityID, kind: ev.Kind, subEventID: ev.SubEventID}
}

// records remembers which message announced an event in each channel, so
// later refinements edit it instead of posting again.
type records struct {
	mu sync.Mutex
	m  map[recordKey]map[string]string
}

func newRecords() *records {
	return &records{m: make(map[recordKey]map[string]string)}
}

// get returns a copy of channel id → message id for ev.
func (r *records) get(ev model.Event) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.m[keyOf(ev)]))
	for ch, msg := range r.m[keyOf(ev)] {
		out[ch] = msg
	}
	return out
}

func (r *records) put(ev model.Event, channelID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(ev)
	if r.m[k] == nil {
		r.m[k] = make(map[string]string)
	}
	r.m[k][channelID] = messageID
}

func (r *records) forget(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, keyOf(ev))
}

func (r *records) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
