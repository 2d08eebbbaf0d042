package feed

import (
	"sync"

	"github.com/opsdeck/booking-sync/internal/event"
)

const DefaultCapacity = 200

// Record wraps a normalized event with its read state.
type Record struct {
	Event event.NormalizedEvent `json:"event"`
	Read  bool                  `json:"read"`
}

// Feed is an ordered, capacity-capped, newest-first log of notifications with
// an unread counter.  It is purely a projection: no network calls originate
// here.
type Feed struct {
	mu       sync.Mutex
	records  []Record
	unread   int
	open     bool
	capacity int
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Append prepends the event as an unread record.  The unread counter only
// moves while the feed is not being looked at: events arriving while the feed
// is open are visible immediately and must not be miscounted.
func (f *Feed) Append(ev event.NormalizedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]Record, 0, len(f.records)+1)
	records = append(records, Record{Event: ev})
	records = append(records, f.records...)

	if len(records) > f.capacity {
		records = records[:f.capacity]
	}
	f.records = records

	if !f.open {
		f.unread++
	}
}

// Open marks the feed visible and resets the unread counter.  Records are
// marked read in bulk on the transition to open.
func (f *Feed) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		f.markAllReadLocked()
	}
	f.open = true
	f.unread = 0
}

// Close marks the feed hidden again.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}

// Toggle flips visibility, resetting the unread counter on the transition to
// open.
func (f *Feed) Toggle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.open = !f.open
	if f.open {
		f.markAllReadLocked()
		f.unread = 0
	}
	return f.open
}

// ClearAll empties the feed.  Booking records are not affected.
func (f *Feed) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = f.records[:0]
	f.unread = 0
}

// Records returns a copy of the feed, newest first.
func (f *Feed) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	records := make([]Record, len(f.records))
	copy(records, f.records)
	return records
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

func (f *Feed) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Feed) markAllReadLocked() {
	for i := range f.records {
		f.records[i].Read = true
	}
}
