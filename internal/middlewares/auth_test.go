package middlewares_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdeck/booking-sync/internal/middlewares"
)

const (
	authFailure    = "Authentication failed\n"
	expectedTenant = "tenant-1"
)

func GetTestHandler(expectedTenantID string) http.HandlerFunc {
	fn := func(rw http.ResponseWriter, req *http.Request) {
		principal, ok := middlewares.GetPrincipal(req.Context())
		Expect(ok).To(Equal(true))
		Expect(principal.GetTenant()).To(Equal(expectedTenantID))
	}

	return http.HandlerFunc(fn)
}

func boiler(req *http.Request, expectedStatusCode int, expectedBody string, expectedTenantID string, amw *middlewares.AuthMiddleware) {
	rr := httptest.NewRecorder()
	handler := amw.Authenticate(GetTestHandler(expectedTenantID))
	handler.ServeHTTP(rr, req)

	Expect(rr.Code).To(Equal(expectedStatusCode))
	Expect(rr.Body.String()).To(Equal(expectedBody))
}

var _ = Describe("Auth", func() {
	var (
		req *http.Request
		amw *middlewares.AuthMiddleware
	)

	BeforeEach(func() {
		knownSecrets := make(map[string]interface{})
		knownSecrets["test_client_1"] = "12345"
		amw = &middlewares.AuthMiddleware{Secrets: knownSecrets}

		r, err := http.NewRequest("GET", "/api/booking-sync/v1/notifications", nil)
		if err != nil {
			panic("Test error unable to get new request")
		}
		req = r
	})

	Describe("Using pre-shared-key authentication", func() {
		Context("With no missing auth headers", func() {
			It("Should return 200 when the key is correct", func() {
				req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
				req.Header.Add(middlewares.PSKTenantHeader, expectedTenant)
				req.Header.Add(middlewares.PSKHeader, "12345")

				boiler(req, 200, "", expectedTenant, amw)
			})

			It("Should return 401 when the key is incorrect", func() {
				req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
				req.Header.Add(middlewares.PSKTenantHeader, expectedTenant)
				req.Header.Add(middlewares.PSKHeader, "54321")

				boiler(req, 401, authFailure, expectedTenant, amw)
			})

			It("Should return 401 when the client id is unknown", func() {
				req.Header.Add(middlewares.PSKClientIdHeader, "unknown_client")
				req.Header.Add(middlewares.PSKTenantHeader, expectedTenant)
				req.Header.Add(middlewares.PSKHeader, "12345")

				boiler(req, 401, authFailure, expectedTenant, amw)
			})
		})

		Context("With missing auth headers", func() {
			It("Should return 401 when the client id is missing", func() {
				req.Header.Add(middlewares.PSKTenantHeader, expectedTenant)
				req.Header.Add(middlewares.PSKHeader, "12345")

				boiler(req, 401, authFailure, expectedTenant, amw)
			})

			It("Should return 401 when the tenant is missing", func() {
				req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
				req.Header.Add(middlewares.PSKHeader, "12345")

				boiler(req, 401, authFailure, expectedTenant, amw)
			})

			It("Should return 401 when the key is missing", func() {
				req.Header.Add(middlewares.PSKClientIdHeader, "test_client_1")
				req.Header.Add(middlewares.PSKTenantHeader, expectedTenant)

				boiler(req, 401, authFailure, expectedTenant, amw)
			})

			It("Should return 401 when all headers are missing", func() {
				boiler(req, 401, authFailure, expectedTenant, amw)
			})
		})
	})
})
