package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdeck/booking-sync/internal/config"
	"github.com/opsdeck/booking-sync/internal/event"
	"github.com/opsdeck/booking-sync/internal/feed"
	"github.com/opsdeck/booking-sync/internal/middlewares"
	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/reconciler"

	"github.com/gorilla/mux"
)

func init() {
	logger.InitLogger()
}

func addAuthHeaders(req *http.Request) {
	req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
	req.Header.Add(middlewares.PSKTenantHeader, "tenant-1")
	req.Header.Add(middlewares.PSKHeader, "12345")
}

var _ = Describe("NotificationFeedServer", func() {

	var (
		nfs              *NotificationFeedServer
		notificationFeed *feed.Feed
		bookingStore     *reconciler.Store
		urlBasePath      string
	)

	BeforeEach(func() {
		apiMux := mux.NewRouter()
		cfg := config.GetConfig()
		cfg.ServiceToServiceCredentials["test_client_1"] = "12345"
		urlBasePath = cfg.UrlBasePath

		notificationFeed = feed.NewFeed(10)
		bookingStore = reconciler.NewStore()
		bookingStore.ReplaceAll([]reconciler.BookingRecord{
			{BookingID: "bk-1", Status: "pending", Attributes: map[string]interface{}{"guest": "A. Vance"}},
		})

		nfs = NewNotificationFeedServer(notificationFeed, bookingStore, apiMux, urlBasePath, cfg)
		nfs.Routes()
	})

	Describe("Fetching the notification feed", func() {
		Context("With valid service to service credentials", func() {
			It("Should return the notifications newest first with the unread count", func() {
				notificationFeed.Append(event.NormalizedEvent{ID: "ev-1", Text: "Booking confirmed", Severity: event.SeveritySuccess})
				notificationFeed.Append(event.NormalizedEvent{ID: "ev-2", Text: "Payment overdue", Severity: event.SeverityWarning})

				req, err := http.NewRequest("GET", urlBasePath+"/notifications", nil)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				nfs.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))

				var response notificationFeedResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())

				Expect(response.UnreadCount).To(Equal(2))
				Expect(response.Open).To(BeFalse())
				Expect(response.Notifications).To(HaveLen(2))
				Expect(response.Notifications[0].Text).To(Equal("Payment overdue"))
				Expect(response.Notifications[0].Severity).To(Equal("warning"))
				Expect(response.Notifications[1].Text).To(Equal("Booking confirmed"))
				Expect(response.Notifications[1].Severity).To(Equal("success"))
			})
		})

		Context("Without service to service credentials", func() {
			It("Should reject the request", func() {
				req, err := http.NewRequest("GET", urlBasePath+"/notifications", nil)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				nfs.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		Context("With an invalid pre-shared key", func() {
			It("Should reject the request", func() {
				req, err := http.NewRequest("GET", urlBasePath+"/notifications", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
				req.Header.Add(middlewares.PSKTenantHeader, "tenant-1")
				req.Header.Add(middlewares.PSKHeader, "wrong-key")

				rr := httptest.NewRecorder()
				nfs.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})
	})

	Describe("Opening and closing the feed", func() {
		It("Should reset the unread count on open", func() {
			notificationFeed.Append(event.NormalizedEvent{ID: "ev-1", Text: "Booking confirmed"})

			req, err := http.NewRequest("POST", urlBasePath+"/notifications/open", nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			nfs.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var response feedStateResponse
			Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
			Expect(response.UnreadCount).To(Equal(0))
			Expect(response.Open).To(BeTrue())
		})

		It("Should mark the feed hidden again on close", func() {
			notificationFeed.Open()

			req, err := http.NewRequest("POST", urlBasePath+"/notifications/close", nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			nfs.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(notificationFeed.IsOpen()).To(BeFalse())
		})
	})

	Describe("Clearing the feed", func() {
		It("Should remove all notifications", func() {
			notificationFeed.Append(event.NormalizedEvent{ID: "ev-1", Text: "Booking confirmed"})

			req, err := http.NewRequest("POST", urlBasePath+"/notifications/clear", nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			nfs.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(notificationFeed.Records()).To(BeEmpty())
		})

		It("Should not touch the booking collection", func() {
			req, err := http.NewRequest("POST", urlBasePath+"/notifications/clear", nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			nfs.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(bookingStore.Len()).To(Equal(1))
		})
	})

	Describe("Fetching the booking collection", func() {
		It("Should return the reconciled bookings", func() {
			req, err := http.NewRequest("GET", urlBasePath+"/bookings", nil)
			Expect(err).NotTo(HaveOccurred())
			addAuthHeaders(req)

			rr := httptest.NewRecorder()
			nfs.router.ServeHTTP(rr, req)

			Expect(rr.Code).To(Equal(http.StatusOK))

			var bookings []map[string]interface{}
			Expect(json.Unmarshal(rr.Body.Bytes(), &bookings)).To(Succeed())
			Expect(bookings).To(HaveLen(1))
			Expect(bookings[0]).To(HaveKeyWithValue("booking_id", "bk-1"))
			Expect(bookings[0]).To(HaveKeyWithValue("status", "pending"))
			Expect(bookings[0]).To(HaveKeyWithValue("guest", "A. Vance"))
		})
	})
})
