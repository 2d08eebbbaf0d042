package controller

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opsdeck/booking-sync/internal/event"
	"github.com/opsdeck/booking-sync/internal/feed"
	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/reconciler"

	"github.com/sirupsen/logrus"
)

// EventSubscriber is the outbound interface exposed to consumers of the
// synchronization subsystem.
type EventSubscriber struct {
	OnConnectivityChange func(isOpen bool)
	OnNormalizedEvent    func(ev event.NormalizedEvent)
	OnBookingPatch       func(bookingID string, newStatus string)
}

// Dispatcher fans each inbound frame out to the notification feed and the
// booking reconciler.  Upstream delivery is at-most-once-ish, so frames
// carrying a message id are deduplicated through a bounded cache before
// processing.
type Dispatcher struct {
	feed             *feed.Feed
	reconciler       *reconciler.Reconciler
	recentMessageIDs *lru.Cache[string, struct{}]
	subscriber       EventSubscriber

	mu       sync.Mutex
	everOpen bool
}

func NewDispatcher(notificationFeed *feed.Feed, bookingReconciler *reconciler.Reconciler, dedupeCacheSize int, subscriber EventSubscriber) (*Dispatcher, error) {
	cache, err := lru.New[string, struct{}](dedupeCacheSize)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		feed:             notificationFeed,
		reconciler:       bookingReconciler,
		recentMessageIDs: cache,
		subscriber:       subscriber,
	}, nil
}

// HandleFrame processes one parsed frame from the transport.  A bad frame
// never takes the channel down: every failure path inside is a logged no-op.
func (d *Dispatcher) HandleFrame(payload map[string]interface{}) {

	if messageID, ok := payload["message_id"].(string); ok && messageID != "" {
		if found, _ := d.recentMessageIDs.ContainsOrAdd(messageID, struct{}{}); found {
			metrics.duplicateFrameCounter.Inc()
			logger.Log.WithFields(logrus.Fields{"message_id": messageID}).Debug("Dropping duplicate frame")
			return
		}
	}

	if normalized := event.Normalize(payload); normalized != nil {
		metrics.eventNormalizedCounter.Inc()
		d.feed.Append(*normalized)

		if d.subscriber.OnNormalizedEvent != nil {
			d.subscriber.OnNormalizedEvent(*normalized)
		}
	} else {
		metrics.eventDroppedCounter.Inc()
	}

	outcome, patch := d.reconciler.Apply(payload)
	if outcome == reconciler.OutcomePatched && patch != nil && d.subscriber.OnBookingPatch != nil {
		d.subscriber.OnBookingPatch(patch.BookingID, patch.Status)
	}
}

// HandleConnectivityChange forwards the status flag to subscribers and, when
// the channel comes back after having been open before, resynchronizes the
// booking collection since events may have been missed during the gap.
func (d *Dispatcher) HandleConnectivityChange(isOpen bool) {
	d.mu.Lock()
	resync := isOpen && d.everOpen
	if isOpen {
		d.everOpen = true
	}
	d.mu.Unlock()

	if resync {
		logger.Log.Info("Notification channel reestablished, resynchronizing bookings")
		d.reconciler.Resync()
	}

	if d.subscriber.OnConnectivityChange != nil {
		d.subscriber.OnConnectivityChange(isOpen)
	}
}

// HandleError receives transport errors.  The transport has already logged
// and classified them; nothing here closes the connection or reconnects, the
// close path that follows takes care of that.
func (d *Dispatcher) HandleError(err error) {
	logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Transport error forwarded to dispatcher")
}
