package api

import (
	"net/http"
	"time"

	"github.com/opsdeck/booking-sync/internal/config"
	"github.com/opsdeck/booking-sync/internal/feed"
	"github.com/opsdeck/booking-sync/internal/middlewares"
	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/reconciler"

	"github.com/gorilla/mux"
)

// NotificationFeedServer exposes the in-memory notification feed and the
// reconciled booking list over the management API.
type NotificationFeedServer struct {
	feed         *feed.Feed
	bookingStore *reconciler.Store
	router       *mux.Router
	config       *config.Config
	urlPrefix    string
}

func NewNotificationFeedServer(notificationFeed *feed.Feed, bookingStore *reconciler.Store, r *mux.Router, urlPrefix string, cfg *config.Config) *NotificationFeedServer {
	return &NotificationFeedServer{
		feed:         notificationFeed,
		bookingStore: bookingStore,
		router:       r,
		config:       cfg,
		urlPrefix:    urlPrefix,
	}
}

func (nfs *NotificationFeedServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: nfs.config.ServiceToServiceCredentials}

	securedSubRouter := nfs.router.PathPrefix(nfs.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/notifications", nfs.handleGetNotifications()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/notifications/open", nfs.handleOpenFeed()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/notifications/close", nfs.handleCloseFeed()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/notifications/clear", nfs.handleClearFeed()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/bookings", nfs.handleGetBookings()).Methods(http.MethodGet)
}

type notificationEntry struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Severity      string `json:"severity"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Kind          string `json:"kind,omitempty"`
	ReceivedAt    string `json:"received_at"`
	Read          bool   `json:"read"`
}

type notificationFeedResponse struct {
	UnreadCount   int                 `json:"unread_count"`
	Open          bool                `json:"open"`
	Notifications []notificationEntry `json:"notifications"`
}

type feedStateResponse struct {
	UnreadCount int  `json:"unread_count"`
	Open        bool `json:"open"`
}

func (nfs *NotificationFeedServer) handleGetNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		records := nfs.feed.Records()
		entries := make([]notificationEntry, 0, len(records))
		for _, record := range records {
			entries = append(entries, notificationEntry{
				ID:            record.Event.ID,
				Text:          record.Event.Text,
				Severity:      string(record.Event.Severity),
				CorrelationID: record.Event.CorrelationID,
				Kind:          record.Event.Kind,
				ReceivedAt:    record.Event.ReceivedAt.Format(time.RFC3339),
				Read:          record.Read,
			})
		}

		response := notificationFeedResponse{
			UnreadCount:   nfs.feed.UnreadCount(),
			Open:          nfs.feed.IsOpen(),
			Notifications: entries,
		}

		writeJSONResponse(w, http.StatusOK, response)
	}
}

func (nfs *NotificationFeedServer) handleOpenFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		nfs.feed.Open()
		writeJSONResponse(w, http.StatusOK, feedStateResponse{UnreadCount: nfs.feed.UnreadCount(), Open: nfs.feed.IsOpen()})
	}
}

func (nfs *NotificationFeedServer) handleCloseFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		nfs.feed.Close()
		writeJSONResponse(w, http.StatusOK, feedStateResponse{UnreadCount: nfs.feed.UnreadCount(), Open: nfs.feed.IsOpen()})
	}
}

func (nfs *NotificationFeedServer) handleClearFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		nfs.feed.ClearAll()
		writeJSONResponse(w, http.StatusOK, feedStateResponse{UnreadCount: nfs.feed.UnreadCount(), Open: nfs.feed.IsOpen()})
	}
}

func (nfs *NotificationFeedServer) handleGetBookings() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSONResponse(w, http.StatusOK, nfs.bookingStore.Snapshot())
	}
}
