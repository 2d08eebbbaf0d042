package reconciler

import (
	"context"
	"sync"

	"github.com/opsdeck/booking-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

// BookingFetcher is the external REST collaborator used for full
// resynchronization.
type BookingFetcher interface {
	FetchBookings(ctx context.Context, tenantID string) ([]BookingRecord, error)
}

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomePatched
	OutcomeInvalidated
)

func (o Outcome) String() string {
	switch o {
	case OutcomePatched:
		return "patched"
	case OutcomeInvalidated:
		return "invalidated"
	default:
		return "ignored"
	}
}

type PatchResult struct {
	BookingID string
	Status    string
}

// Reconciler keeps the booking collection consistent with server-side
// reality using partial, unordered event delivery, falling back to a full
// silent refetch when an event cannot be mapped to a targeted patch.
type Reconciler struct {
	store   *Store
	fetcher BookingFetcher

	// The trigger condition for a broad invalidation is inferred from the
	// observed upstream payloads and may not be exhaustive, so it is
	// configurable rather than hard-coded.
	invalidationTypes map[string]struct{}
	invalidationRoles map[string]struct{}

	mu       sync.Mutex
	tenantID string
}

func NewReconciler(store *Store, fetcher BookingFetcher, invalidationTypes []string, invalidationRoles []string) *Reconciler {
	r := &Reconciler{
		store:             store,
		fetcher:           fetcher,
		invalidationTypes: make(map[string]struct{}),
		invalidationRoles: make(map[string]struct{}),
	}
	for _, t := range invalidationTypes {
		r.invalidationTypes[t] = struct{}{}
	}
	for _, role := range invalidationRoles {
		r.invalidationRoles[role] = struct{}{}
	}
	return r
}

// SetTenant records which tenant's booking list a refetch should target.
func (r *Reconciler) SetTenant(tenantID string) {
	r.mu.Lock()
	r.tenantID = tenantID
	r.mu.Unlock()
}

func (r *Reconciler) Store() *Store {
	return r.store
}

// Apply reconciles one raw event into the booking collection.  Broad
// invalidation signals trigger one silent refetch; anything else is treated
// as a targeted patch attempt.  Nothing here ever panics past the message
// handling boundary: every failure path is a logged no-op.
func (r *Reconciler) Apply(raw map[string]interface{}) (Outcome, *PatchResult) {
	if raw == nil {
		return OutcomeIgnored, nil
	}

	if r.isInvalidation(raw) {
		metrics.refetchTriggeredCounter.Inc()
		go r.refetch()
		return OutcomeInvalidated, nil
	}

	source := patchSource(raw)
	if source == nil {
		return OutcomeIgnored, nil
	}

	bookingID := idField(source)
	status, _ := source["status"].(string)

	if bookingID == "" || status == "" {
		return OutcomeIgnored, nil
	}

	if !r.store.ApplyPatch(bookingID, status) {
		// Either the booking is unknown locally (creation only happens via
		// the REST collaborator) or the status already matches.
		metrics.patchIgnoredCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"booking_id": bookingID, "status": status}).Debug("Ignoring booking patch")
		return OutcomeIgnored, nil
	}

	metrics.patchAppliedCounter.Inc()
	logger.Log.WithFields(logrus.Fields{"booking_id": bookingID, "status": status}).Info("Applied booking status patch")

	return OutcomePatched, &PatchResult{BookingID: bookingID, Status: status}
}

// Resync forces a silent full refetch.  Called when the channel reconnects
// after a gap, since events may have been missed while it was down.
func (r *Reconciler) Resync() {
	metrics.refetchTriggeredCounter.Inc()
	go r.refetch()
}

func (r *Reconciler) isInvalidation(raw map[string]interface{}) bool {
	if eventType, ok := raw["type"].(string); ok {
		if _, match := r.invalidationTypes[eventType]; match {
			return true
		}
	}
	if role, ok := raw["role"].(string); ok {
		if _, match := r.invalidationRoles[role]; match {
			return true
		}
	}
	return false
}

// patchSource finds the object carrying the targeted patch fields, probing
// the payload itself and then one level down at data.
func patchSource(raw map[string]interface{}) map[string]interface{} {
	if isPatchShaped(raw) {
		return raw
	}
	if data, ok := raw["data"].(map[string]interface{}); ok {
		if isPatchShaped(data) {
			return data
		}
	}
	return nil
}

func isPatchShaped(obj map[string]interface{}) bool {
	if _, ok := obj["status"]; !ok {
		return false
	}
	return idField(obj) != ""
}

func (r *Reconciler) refetch() {
	r.mu.Lock()
	tenantID := r.tenantID
	r.mu.Unlock()

	if tenantID == "" {
		logger.Log.Debug("Skipping booking refetch: no tenant is set")
		return
	}

	bookings, err := r.fetcher.FetchBookings(context.Background(), tenantID)
	if err != nil {
		metrics.refetchFailureCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"error": err, "tenant_id": tenantID}).Error("Silent booking refetch failed")
		return
	}

	r.store.ReplaceAll(bookings)
	logger.Log.WithFields(logrus.Fields{"tenant_id": tenantID, "count": len(bookings)}).Debug("Booking collection replaced from refetch")
}
