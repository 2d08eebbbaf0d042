package controller

import (
	"context"
	"sync"

	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/reconciler"
	"github.com/opsdeck/booking-sync/internal/session"
	"github.com/opsdeck/booking-sync/internal/transport"

	"github.com/sirupsen/logrus"
)

// Supervisor ties the session provider to the connection manager: it
// resolves the current identity, connects, and tears the connection down
// before connecting again whenever the identity changes or becomes invalid.
type Supervisor struct {
	provider   session.Provider
	conn       *transport.ConnectionManager
	reconciler *reconciler.Reconciler

	mu      sync.Mutex
	current session.Identity
}

func NewSupervisor(provider session.Provider, conn *transport.ConnectionManager, bookingReconciler *reconciler.Reconciler) *Supervisor {
	return &Supervisor{
		provider:   provider,
		conn:       conn,
		reconciler: bookingReconciler,
	}
}

// Start resolves the identity and opens the channel.
func (s *Supervisor) Start(ctx context.Context) error {
	return s.RefreshIdentity(ctx)
}

// RefreshIdentity re-evaluates the session provider.  A changed identity
// closes the previous connection before the new one is attempted; an invalid
// or unavailable identity tears the active connection down and leaves the
// channel closed.
func (s *Supervisor) RefreshIdentity(ctx context.Context) error {

	identity, err := s.provider.Identity(ctx)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to resolve session identity")
		s.setCurrent(session.Identity{})
		s.conn.Disconnect()
		return err
	}

	if !identity.Valid() {
		logger.Log.Warn("Session identity is incomplete, closing the notification channel")
		s.setCurrent(session.Identity{})
		s.conn.Disconnect()
		return nil
	}

	s.mu.Lock()
	changed := !identity.Equal(s.current)
	s.current = identity
	s.mu.Unlock()

	if changed {
		s.conn.Disconnect()
	}

	s.reconciler.SetTenant(identity.TenantID)
	s.conn.Connect(identity)

	return nil
}

// Shutdown closes the channel terminally.
func (s *Supervisor) Shutdown() {
	s.setCurrent(session.Identity{})
	s.conn.Shutdown()
}

func (s *Supervisor) CurrentIdentity() session.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) setCurrent(identity session.Identity) {
	s.mu.Lock()
	s.current = identity
	s.mu.Unlock()
}
