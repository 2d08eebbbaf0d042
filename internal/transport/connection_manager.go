package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/session"

	"github.com/sirupsen/logrus"
)

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscriber receives the events the connection manager exposes to the rest
// of the system.  Frames are delivered already parsed; frames that are not
// valid JSON never reach the subscriber.
type Subscriber struct {
	OnConnectivityChange func(isOpen bool)
	OnFrame              func(payload map[string]interface{})
	OnError              func(err error)
}

// ConnectionManager owns at most one live transport per valid session
// identity.  An abnormal close schedules exactly one reconnection attempt; an
// intentional close (Disconnect/Shutdown) is terminal.  The transport handle
// and the retry timer are exclusively owned here.
type ConnectionManager struct {
	mu         sync.Mutex
	state      ConnectionState
	conn       Conn
	retryTimer *time.Timer
	identity   session.Identity

	// generation invalidates stale async callbacks (dial results, read loop
	// exits, timer fires) after a teardown or a newer connection attempt.
	generation       uint64
	shutdown         bool
	intentionalClose bool

	dialer            Dialer
	urlTemplate       string
	reconnectDelay    time.Duration
	connectRetryDelay time.Duration
	subscriber        Subscriber
}

func NewConnectionManager(urlTemplate string, dialer Dialer, reconnectDelay time.Duration, connectRetryDelay time.Duration, subscriber Subscriber) *ConnectionManager {
	return &ConnectionManager{
		state:             StateIdle,
		dialer:            dialer,
		urlTemplate:       urlTemplate,
		reconnectDelay:    reconnectDelay,
		connectRetryDelay: connectRetryDelay,
		subscriber:        subscriber,
	}
}

// Connect opens the notification channel for the given identity.  Calling it
// while a connection for the same identity is already connecting or open is a
// no-op, so consumers may safely invoke it from multiple lifecycle paths.  A
// call with a different identity tears the old connection down first.
func (cm *ConnectionManager) Connect(identity session.Identity) {
	cm.mu.Lock()

	if cm.shutdown {
		cm.mu.Unlock()
		return
	}

	if !identity.Valid() {
		cm.mu.Unlock()
		logger.Log.Warn("Suppressing connection attempt: session identity is incomplete")
		return
	}

	if cm.state == StateConnecting || cm.state == StateOpen {
		if cm.identity.Equal(identity) {
			logger.Log.Debug("Connection already ", cm.state, ", ignoring connect request")
			cm.mu.Unlock()
			return
		}

		logger.Log.WithFields(logrus.Fields{"identity": identity}).Info("Session identity changed, closing previous connection")
		wasOpen := cm.teardownLocked()
		cm.identity = identity
		cm.connectLocked()
		cm.mu.Unlock()

		if wasOpen {
			cm.notifyConnectivity(false)
		}
		return
	}

	cm.identity = identity
	cm.connectLocked()
	cm.mu.Unlock()
}

func (cm *ConnectionManager) connectLocked() {
	cm.stopRetryTimerLocked()
	cm.state = StateConnecting
	cm.intentionalClose = false
	cm.generation++

	channelUrl := fmt.Sprintf(cm.urlTemplate, url.QueryEscape(cm.identity.TenantID), url.QueryEscape(cm.identity.Credential))

	go cm.dial(cm.generation, channelUrl)
}

func (cm *ConnectionManager) dial(generation uint64, channelUrl string) {

	conn, err := cm.dialer.Dial(channelUrl, nil)

	cm.mu.Lock()

	if cm.shutdown || generation != cm.generation {
		cm.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		connectErr := classifyDialError(err)
		logger.Log.WithFields(logrus.Fields{"error": connectErr, "identity": cm.identity}).Error("Unable to connect to the notification channel")
		metrics.connectionFailureCounter.Inc()

		cm.state = StateClosed
		cm.conn = nil
		cm.scheduleRetryLocked(cm.connectRetryDelay)
		cm.mu.Unlock()

		if cm.subscriber.OnError != nil {
			cm.subscriber.OnError(connectErr)
		}
		return
	}

	cm.conn = conn
	cm.state = StateOpen
	cm.stopRetryTimerLocked()
	metrics.connectionEstablishedCounter.Inc()
	cm.mu.Unlock()

	logger.Log.WithFields(logrus.Fields{"identity": cm.identity}).Info("Notification channel is open")

	cm.notifyConnectivity(true)

	go cm.readLoop(generation, conn)
}

func (cm *ConnectionManager) readLoop(generation uint64, conn Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			cm.handleClose(generation, err)
			return
		}

		cm.handleFrame(generation, frame)
	}
}

func (cm *ConnectionManager) handleFrame(generation uint64, frame []byte) {
	cm.mu.Lock()
	stale := cm.shutdown || generation != cm.generation
	cm.mu.Unlock()

	if stale {
		return
	}

	metrics.framesReceivedCounter.Inc()

	var payload map[string]interface{}
	if err := json.Unmarshal(frame, &payload); err != nil {
		metrics.frameParseFailureCounter.Inc()
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Dropping frame that is not valid JSON")
		return
	}

	if cm.subscriber.OnFrame != nil {
		cm.subscriber.OnFrame(payload)
	}
}

func (cm *ConnectionManager) handleClose(generation uint64, err error) {
	cm.mu.Lock()

	if cm.shutdown || generation != cm.generation {
		cm.mu.Unlock()
		return
	}

	intentional := cm.intentionalClose || websocket.IsCloseError(err, websocket.CloseNormalClosure)

	cm.conn = nil
	cm.state = StateClosed

	var closeErr error
	if !intentional {
		closeErr = classifyCloseError(err)
		logger.Log.WithFields(logrus.Fields{"error": closeErr, "identity": cm.identity}).Warn("Notification channel closed abnormally, scheduling reconnect")
		cm.scheduleRetryLocked(cm.reconnectDelay)
	} else {
		logger.Log.Info("Notification channel closed")
	}
	cm.mu.Unlock()

	cm.notifyConnectivity(false)

	if closeErr != nil && cm.subscriber.OnError != nil {
		cm.subscriber.OnError(closeErr)
	}
}

// scheduleRetryLocked guarantees at most one outstanding retry timer: any
// previously pending timer is stopped before the new one is armed.
func (cm *ConnectionManager) scheduleRetryLocked(delay time.Duration) {
	if cm.retryTimer != nil {
		cm.retryTimer.Stop()
	}

	generation := cm.generation
	cm.retryTimer = time.AfterFunc(delay, func() {
		cm.retryFired(generation)
	})
	metrics.reconnectScheduledCounter.Inc()
}

func (cm *ConnectionManager) retryFired(generation uint64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.shutdown || generation != cm.generation {
		return
	}

	cm.retryTimer = nil

	if !cm.identity.Valid() {
		logger.Log.Debug("Skipping reconnect: session identity is no longer valid")
		return
	}

	logger.Log.WithFields(logrus.Fields{"identity": cm.identity}).Info("Attempting to reconnect to the notification channel")
	cm.connectLocked()
}

// Disconnect closes the channel intentionally.  The close is flagged so the
// read loop classifies it as a normal shutdown and does not schedule a
// reconnect.  Idempotent.
func (cm *ConnectionManager) Disconnect() {
	cm.mu.Lock()
	wasOpen := cm.teardownLocked()
	cm.mu.Unlock()

	if wasOpen {
		cm.notifyConnectivity(false)
	}
}

// Shutdown disconnects and prevents any further connection attempts.
func (cm *ConnectionManager) Shutdown() {
	cm.mu.Lock()
	cm.shutdown = true
	wasOpen := cm.teardownLocked()
	cm.mu.Unlock()

	if wasOpen {
		cm.notifyConnectivity(false)
	}
}

func (cm *ConnectionManager) teardownLocked() bool {
	cm.stopRetryTimerLocked()

	wasOpen := cm.state == StateOpen

	// Invalidate any in-flight dial results, read loop callbacks and timer
	// fires belonging to the connection being torn down.
	cm.generation++

	if cm.conn != nil {
		cm.state = StateClosing
		cm.intentionalClose = true

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := cm.conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Unable to write close frame")
		}
		cm.conn.Close()
		cm.conn = nil
	}

	if cm.state != StateIdle {
		cm.state = StateClosed
	}

	return wasOpen
}

func (cm *ConnectionManager) stopRetryTimerLocked() {
	if cm.retryTimer != nil {
		cm.retryTimer.Stop()
		cm.retryTimer = nil
	}
}

// Send marshals the payload and writes it to the channel.  When the channel
// is not open the message is dropped with a warning: outbound messages are
// never queued and a send never fails loudly.
func (cm *ConnectionManager) Send(payload interface{}) {
	cm.mu.Lock()
	conn := cm.conn
	open := cm.state == StateOpen
	cm.mu.Unlock()

	if !open || conn == nil {
		metrics.sendsDroppedCounter.Inc()
		logger.Log.Warn("Dropping outbound message: notification channel is not open")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to marshal outbound message")
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Error writing message to the notification channel")
		return
	}

	metrics.messagesSentCounter.Inc()
}

func (cm *ConnectionManager) State() ConnectionState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// IsOpen is the connection-status flag exposed to consumers.
func (cm *ConnectionManager) IsOpen() bool {
	return cm.State() == StateOpen
}

// RetryPending reports whether a reconnection attempt is currently scheduled.
func (cm *ConnectionManager) RetryPending() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.retryTimer != nil
}

func (cm *ConnectionManager) notifyConnectivity(isOpen bool) {
	if isOpen {
		metrics.connectionStatusGauge.Set(1)
	} else {
		metrics.connectionStatusGauge.Set(0)
	}

	if cm.subscriber.OnConnectivityChange != nil {
		cm.subscriber.OnConnectivityChange(isOpen)
	}
}
