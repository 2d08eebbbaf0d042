package reconciler

import (
	"encoding/json"
	"strconv"
	"sync"
)

// BookingRecord is a client-held projection of a server-owned booking.  Only
// BookingID and Status are interpreted here; everything else rides along in
// Attributes untouched.
type BookingRecord struct {
	BookingID  string
	Status     string
	Attributes map[string]interface{}
}

func (r BookingRecord) MarshalJSON() ([]byte, error) {
	obj := make(map[string]interface{}, len(r.Attributes)+2)
	for k, v := range r.Attributes {
		obj[k] = v
	}
	obj["booking_id"] = r.BookingID
	obj["status"] = r.Status
	return json.Marshal(obj)
}

// BookingRecordFromObject builds a record from a loosely-shaped object.  The
// identifier may arrive as booking_id or id, as a string or a number.
func BookingRecordFromObject(obj map[string]interface{}) (BookingRecord, bool) {
	id := idField(obj)
	if id == "" {
		return BookingRecord{}, false
	}

	status, _ := obj["status"].(string)

	attributes := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		if k == "booking_id" || k == "id" || k == "status" {
			continue
		}
		attributes[k] = v
	}

	return BookingRecord{BookingID: id, Status: status, Attributes: attributes}, true
}

func idField(obj map[string]interface{}) string {
	for _, key := range []string{"booking_id", "id"} {
		switch value := obj[key].(type) {
		case string:
			if value != "" {
				return value
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}
	return ""
}

// Store holds the booking collection.  Updates are copy-on-write: every
// mutation installs a fresh slice, so snapshots handed out earlier are never
// mutated underneath a reader, and an untouched record keeps its identity
// across a patch.
type Store struct {
	mu       sync.RWMutex
	bookings []BookingRecord
}

func NewStore() *Store {
	return &Store{}
}

// ReplaceAll installs a full refetch result.  The most recently completed
// refetch is authoritative.
func (s *Store) ReplaceAll(bookings []BookingRecord) {
	records := make([]BookingRecord, len(bookings))
	copy(records, bookings)

	s.mu.Lock()
	s.bookings = records
	s.mu.Unlock()
}

// ApplyPatch updates the status of an existing record.  Unknown ids are
// ignored (records are never created from push events) and an equal status is
// a no-op, so duplicate or out-of-order delivery causes no churn.  The patch
// is applied against current state at application time, never against a
// stale snapshot.
func (s *Store) ApplyPatch(bookingID string, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for i := range s.bookings {
		if s.bookings[i].BookingID == bookingID {
			index = i
			break
		}
	}

	if index < 0 {
		return false
	}

	if s.bookings[index].Status == status {
		return false
	}

	records := make([]BookingRecord, len(s.bookings))
	copy(records, s.bookings)
	records[index].Status = status
	s.bookings = records

	return true
}

// Snapshot returns the current collection.  The slice is immutable by
// construction, so it is handed out directly.
func (s *Store) Snapshot() []BookingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookings
}

func (s *Store) Get(bookingID string) (BookingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.bookings {
		if s.bookings[i].BookingID == bookingID {
			return s.bookings[i], true
		}
	}
	return BookingRecord{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}
