package websocket

import (
	"sort"
	"strings"
	"sync"
)

// TrackerFilter is the set of trackers a client subscribed to. An empty
// filter accepts every tracker.
type TrackerFilter struct {
	trackers map[string]bool
	mutex    sync.RWMutex
}

func NewTrackerFilter(ids ...string) *TrackerFilter {
	f := &TrackerFilter{trackers: make(map[string]bool)}
	f.Add(ids...)
	return f
}

// ParseTrackerFilter reads a comma separated list such as "MFBR-1,MFBR-2".
func ParseTrackerFilter(raw string) *TrackerFilter {
	return NewTrackerFilter(strings.Split(raw, ",")...)
}

func (f *TrackerFilter) Add(ids ...string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			f.trackers[id] = true
		}
	}
}

func (f *TrackerFilter) Remove(ids ...string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for _, id := range ids {
		delete(f.trackers, strings.TrimSpace(id))
	}
}

// Accepts reports whether messages about trackerID pass the filter.
// Messages that are not about a tracker always pass.
func (f *TrackerFilter) Accepts(trackerID string) bool {
	if trackerID == "" {
		return true
	}

	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return len(f.trackers) == 0 || f.trackers[trackerID]
}

func (f *TrackerFilter) IDs() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	ids := make([]string, 0, len(f.trackers))
	for id := range f.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
