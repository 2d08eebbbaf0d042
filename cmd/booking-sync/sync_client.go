package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsdeck/booking-sync/internal/bookings"
	"github.com/opsdeck/booking-sync/internal/config"
	"github.com/opsdeck/booking-sync/internal/controller"
	"github.com/opsdeck/booking-sync/internal/controller/api"
	"github.com/opsdeck/booking-sync/internal/feed"
	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/platform/utils"
	"github.com/opsdeck/booking-sync/internal/reconciler"
	"github.com/opsdeck/booking-sync/internal/session"
	"github.com/opsdeck/booking-sync/internal/transport"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func startSyncClient(mgmtAddr string) {

	logger.InitLogger()

	logger.Log.Info("Starting Booking-Sync service")

	cfg := config.GetConfig()
	logger.Log.Info("Booking-Sync configuration:\n", cfg)

	sessionProvider, err := session.NewProvider(cfg)
	if err != nil {
		logger.LogFatalError("Failed to create session provider", err)
	}

	bookingStore := reconciler.NewStore()

	bookingClient := bookings.NewClient(cfg.BookingApiUrlTemplate, func() string {
		identity, err := sessionProvider.Identity(context.Background())
		if err != nil {
			return ""
		}
		return identity.Credential
	}, cfg.BookingApiTimeout)

	bookingReconciler := reconciler.NewReconciler(bookingStore, bookingClient, cfg.InvalidationEventTypes, cfg.InvalidationRoles)

	notificationFeed := feed.NewFeed(cfg.NotificationFeedCapacity)

	dispatcher, err := controller.NewDispatcher(notificationFeed, bookingReconciler, cfg.EventDedupeCacheSize, controller.EventSubscriber{})
	if err != nil {
		logger.LogFatalError("Failed to create event dispatcher", err)
	}

	dialer, err := transport.NewWebsocketDialer(
		transport.WithHandshakeTimeout(cfg.WebSocketHandshakeTimeout))
	if err != nil {
		logger.LogFatalError("Failed to create websocket dialer", err)
	}

	connectionManager := transport.NewConnectionManager(
		cfg.WebSocketUrlTemplate,
		dialer,
		cfg.ReconnectDelay,
		cfg.ConnectRetryDelay,
		transport.Subscriber{
			OnConnectivityChange: dispatcher.HandleConnectivityChange,
			OnFrame:              dispatcher.HandleFrame,
			OnError:              dispatcher.HandleError,
		})

	supervisor := controller.NewSupervisor(sessionProvider, connectionManager, bookingReconciler)

	if err := supervisor.Start(context.Background()); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Warn("Initial connection attempt failed")
	}

	apiMux := mux.NewRouter()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, connectionManager)
	monitoringServer.Routes()

	feedServer := api.NewNotificationFeedServer(notificationFeed, bookingStore, apiMux, cfg.UrlBasePath, cfg)
	feedServer.Routes()

	messageSender := api.NewMessageSender(connectionManager, apiMux, cfg.UrlBasePath, cfg)
	messageSender.Routes()

	apiSrv := utils.StartHTTPServer(mgmtAddr, "management", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-signalChan
		if sig == syscall.SIGHUP {
			logger.Log.Info("Received SIGHUP, refreshing session identity")
			if err := supervisor.RefreshIdentity(context.Background()); err != nil {
				logger.Log.WithFields(logrus.Fields{"error": err}).Warn("Identity refresh failed")
			}
			continue
		}
		logger.Log.Info("Received signal to shutdown: ", sig)
		break
	}

	supervisor.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "management", apiSrv)

	logger.Log.Info("Booking-Sync shutting down")
}
