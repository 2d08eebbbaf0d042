package api

import (
	"net/http"

	"github.com/opsdeck/booking-sync/internal/config"
	"github.com/opsdeck/booking-sync/internal/middlewares"
	"github.com/opsdeck/booking-sync/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ChannelSender pushes a payload onto the upstream event channel.
type ChannelSender interface {
	Send(payload interface{})
	IsOpen() bool
}

type MessageSender struct {
	channel   ChannelSender
	router    *mux.Router
	config    *config.Config
	urlPrefix string
}

func NewMessageSender(channel ChannelSender, r *mux.Router, urlPrefix string, cfg *config.Config) *MessageSender {
	return &MessageSender{
		channel:   channel,
		router:    r,
		config:    cfg,
		urlPrefix: urlPrefix,
	}
}

func (ms *MessageSender) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: ms.config.ServiceToServiceCredentials}

	securedSubRouter := ms.router.PathPrefix(ms.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/message", ms.handleMessage()).Methods(http.MethodPost)
}

type messageRequest struct {
	Payload interface{} `json:"payload" validate:"required"`
}

type messageResponse struct {
	MessageID string `json:"id"`
}

func (ms *MessageSender) handleMessage() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestLogger := logger.Log.WithFields(logrus.Fields{
			"tenant":     principal.GetTenant(),
			"request_id": req.Header.Get("x-request-id")})

		var msgRequest messageRequest

		body := http.MaxBytesReader(w, req.Body, 1048576)

		if err := decodeJSON(body, &msgRequest); err != nil {
			errMsg := "Unable to process json input"
			requestLogger.WithFields(logrus.Fields{"error": err}).Debug(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		if !ms.channel.IsOpen() {
			errMsg := "No connection to the event channel"
			requestLogger.Info(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusNotFound,
				Detail: errMsg}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		messageID := uuid.NewString()
		requestLogger.WithFields(logrus.Fields{"message_id": messageID}).Info("Sending a message")

		ms.channel.Send(msgRequest.Payload)

		writeJSONResponse(w, http.StatusCreated, messageResponse{messageID})
	}
}
