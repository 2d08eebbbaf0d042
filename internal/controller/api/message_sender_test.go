package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdeck/booking-sync/internal/config"

	"github.com/gorilla/mux"
)

type fakeChannelSender struct {
	open     bool
	payloads []interface{}
}

func (f *fakeChannelSender) Send(payload interface{}) {
	f.payloads = append(f.payloads, payload)
}

func (f *fakeChannelSender) IsOpen() bool {
	return f.open
}

var _ = Describe("MessageSender", func() {

	var (
		ms          *MessageSender
		channel     *fakeChannelSender
		urlBasePath string
	)

	BeforeEach(func() {
		apiMux := mux.NewRouter()
		cfg := config.GetConfig()
		cfg.ServiceToServiceCredentials["test_client_1"] = "12345"
		urlBasePath = cfg.UrlBasePath

		channel = &fakeChannelSender{open: true}

		ms = NewMessageSender(channel, apiMux, urlBasePath, cfg)
		ms.Routes()
	})

	Describe("Posting a message to the event channel", func() {
		Context("With an open channel", func() {
			It("Should push the payload and return the message id", func() {
				postBody := strings.NewReader(`{"payload": {"type": "ping"}}`)

				req, err := http.NewRequest("POST", urlBasePath+"/message", postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusCreated))

				var response messageResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.MessageID).NotTo(BeEmpty())

				Expect(channel.payloads).To(HaveLen(1))
			})
		})

		Context("With a closed channel", func() {
			It("Should report that no connection is available", func() {
				channel.open = false

				postBody := strings.NewReader(`{"payload": {"type": "ping"}}`)

				req, err := http.NewRequest("POST", urlBasePath+"/message", postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusNotFound))
				Expect(channel.payloads).To(BeEmpty())
			})
		})

		Context("With a malformed body", func() {
			It("Should reject missing payload field", func() {
				postBody := strings.NewReader(`{"unrelated": true}`)

				req, err := http.NewRequest("POST", urlBasePath+"/message", postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})

			It("Should reject invalid json", func() {
				postBody := strings.NewReader(`this is not json`)

				req, err := http.NewRequest("POST", urlBasePath+"/message", postBody)
				Expect(err).NotTo(HaveOccurred())
				addAuthHeaders(req)

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("Without service to service credentials", func() {
			It("Should reject the request", func() {
				postBody := strings.NewReader(`{"payload": {"type": "ping"}}`)

				req, err := http.NewRequest("POST", urlBasePath+"/message", postBody)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				ms.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})
	})
})
