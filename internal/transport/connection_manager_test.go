package transport

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/booking-sync/internal/platform/logger"
	"github.com/opsdeck/booking-sync/internal/session"

	"github.com/gorilla/websocket"
)

func init() {
	logger.InitLogger()
}

const testUrlTemplate = "ws://localhost:9443/ws/notifications?company=%s&token=%s"

type readResult struct {
	frame []byte
	err   error
}

type fakeConn struct {
	incoming  chan readResult
	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan readResult, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.incoming:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.frame, nil
	case <-c.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "connection closed"}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *fakeConn) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeConn) deliver(frame string) {
	c.incoming <- readResult{frame: []byte(frame)}
}

func (c *fakeConn) failRead(err error) {
	c.incoming <- readResult{err: err}
}

type fakeDialer struct {
	mu         sync.Mutex
	dialedUrls []string
	conns      []*fakeConn
	dialErrs   []error
}

func (d *fakeDialer) Dial(url string, requestHeader http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := len(d.dialedUrls)
	d.dialedUrls = append(d.dialedUrls, url)

	if attempt < len(d.dialErrs) && d.dialErrs[attempt] != nil {
		return nil, d.dialErrs[attempt]
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialedUrls)
}

func (d *fakeDialer) lastUrl() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dialedUrls) == 0 {
		return ""
	}
	return d.dialedUrls[len(d.dialedUrls)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type subscriberRecorder struct {
	mu           sync.Mutex
	connectivity []bool
	frames       []map[string]interface{}
	errors       []error
}

func (sr *subscriberRecorder) subscriber() Subscriber {
	return Subscriber{
		OnConnectivityChange: func(isOpen bool) {
			sr.mu.Lock()
			defer sr.mu.Unlock()
			sr.connectivity = append(sr.connectivity, isOpen)
		},
		OnFrame: func(payload map[string]interface{}) {
			sr.mu.Lock()
			defer sr.mu.Unlock()
			sr.frames = append(sr.frames, payload)
		},
		OnError: func(err error) {
			sr.mu.Lock()
			defer sr.mu.Unlock()
			sr.errors = append(sr.errors, err)
		},
	}
}

func (sr *subscriberRecorder) connectivityEvents() []bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return append([]bool{}, sr.connectivity...)
}

func (sr *subscriberRecorder) frameCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.frames)
}

func (sr *subscriberRecorder) lastFrame() map[string]interface{} {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if len(sr.frames) == 0 {
		return nil
	}
	return sr.frames[len(sr.frames)-1]
}

func (sr *subscriberRecorder) lastError() error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if len(sr.errors) == 0 {
		return nil
	}
	return sr.errors[len(sr.errors)-1]
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition: ", description)
}

func testIdentity() session.Identity {
	return session.Identity{TenantID: "tenant-1", Credential: "token-1"}
}

func newTestConnectionManager(dialer Dialer, subscriber Subscriber) *ConnectionManager {
	return NewConnectionManager(testUrlTemplate, dialer, 10*time.Millisecond, 10*time.Millisecond, subscriber)
}

func TestConnectOpensTheChannel(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())

	waitFor(t, "channel open", cm.IsOpen)

	if dialer.dialCount() != 1 {
		t.Fatal("expected a single dial, got ", dialer.dialCount())
	}

	expectedUrl := "ws://localhost:9443/ws/notifications?company=tenant-1&token=token-1"
	if dialer.lastUrl() != expectedUrl {
		t.Fatal("unexpected channel url: ", dialer.lastUrl())
	}

	events := recorder.connectivityEvents()
	if len(events) != 1 || events[0] != true {
		t.Fatal("expected a single connectivity-up event, got ", events)
	}
}

func TestConnectIsIdempotentForSameIdentity(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Connect(testIdentity())
	cm.Connect(testIdentity())

	time.Sleep(50 * time.Millisecond)

	if dialer.dialCount() != 1 {
		t.Fatal("expected repeated connects to be ignored, got ", dialer.dialCount(), " dials")
	}
}

func TestConnectSuppressedForIncompleteIdentity(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})
	defer cm.Shutdown()

	cm.Connect(session.Identity{TenantID: "tenant-1"})
	cm.Connect(session.Identity{Credential: "token-1"})
	cm.Connect(session.Identity{})

	time.Sleep(50 * time.Millisecond)

	if dialer.dialCount() != 0 {
		t.Fatal("expected no dials for incomplete identities, got ", dialer.dialCount())
	}

	if cm.State() != StateIdle {
		t.Fatal("expected state to remain idle, got ", cm.State())
	}
}

func TestIdentityChangeReplacesTheConnection(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Connect(session.Identity{TenantID: "tenant-2", Credential: "token-2"})
	waitFor(t, "second dial", func() bool { return dialer.dialCount() == 2 })
	waitFor(t, "channel open again", cm.IsOpen)

	if !dialer.conn(0).wasClosed() {
		t.Fatal("expected the previous connection to be closed")
	}

	expectedUrl := "ws://localhost:9443/ws/notifications?company=tenant-2&token=token-2"
	if dialer.lastUrl() != expectedUrl {
		t.Fatal("unexpected channel url after identity change: ", dialer.lastUrl())
	}
}

func TestFramesAreParsedAndDelivered(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	dialer.conn(0).deliver(`{"type":"notification","message":"Booking confirmed"}`)

	waitFor(t, "frame delivery", func() bool { return recorder.frameCount() == 1 })

	frame := recorder.lastFrame()
	if frame["type"] != "notification" {
		t.Fatal("unexpected frame payload: ", frame)
	}
}

func TestInvalidJsonFramesAreDropped(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	dialer.conn(0).deliver(`this is not json`)
	dialer.conn(0).deliver(`{"type":"notification"}`)

	waitFor(t, "valid frame delivery", func() bool { return recorder.frameCount() == 1 })

	if recorder.lastFrame()["type"] != "notification" {
		t.Fatal("expected only the valid frame to be delivered")
	}
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "upstream went away"})

	waitFor(t, "reconnect", func() bool { return dialer.dialCount() == 2 })
	waitFor(t, "channel open again", cm.IsOpen)

	if !errors.Is(recorder.lastError(), ErrAbnormalClose) {
		t.Fatal("expected an abnormal close error, got ", recorder.lastError())
	}

	events := recorder.connectivityEvents()
	if len(events) != 3 || events[0] != true || events[1] != false || events[2] != true {
		t.Fatal("unexpected connectivity sequence: ", events)
	}
}

func TestReconnectTimerIsReplacedNotStacked(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := NewConnectionManager(testUrlTemplate, dialer, 300*time.Millisecond, 300*time.Millisecond, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "upstream went away"})
	waitFor(t, "retry scheduled", cm.RetryPending)

	// An eager reconnect while a retry is pending must replace the timer,
	// not leave it armed alongside the new attempt.
	cm.Connect(testIdentity())
	waitFor(t, "second dial", func() bool { return dialer.dialCount() == 2 })
	waitFor(t, "channel open again", cm.IsOpen)

	dialer.conn(1).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "upstream went away again"})
	waitFor(t, "third dial", func() bool { return dialer.dialCount() == 3 })
	waitFor(t, "channel open once more", cm.IsOpen)

	if cm.RetryPending() {
		t.Fatal("expected no pending retry once the channel is open")
	}

	// Long enough for the first, replaced timer to have fired were it
	// still armed.
	time.Sleep(400 * time.Millisecond)

	if dialer.dialCount() != 3 {
		t.Fatal("expected exactly one dial per connection attempt, got ", dialer.dialCount())
	}
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})

	waitFor(t, "channel closed", func() bool { return cm.State() == StateClosed })

	time.Sleep(50 * time.Millisecond)

	if dialer.dialCount() != 1 {
		t.Fatal("expected no reconnect after a normal close, got ", dialer.dialCount(), " dials")
	}

	if cm.RetryPending() {
		t.Fatal("expected no retry timer after a normal close")
	}
}

func TestDialFailureSchedulesRetry(t *testing.T) {
	dialer := &fakeDialer{dialErrs: []error{errors.New("connection refused")}}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())
	defer cm.Shutdown()

	cm.Connect(testIdentity())

	waitFor(t, "retry dial", func() bool { return dialer.dialCount() == 2 })
	waitFor(t, "channel open", cm.IsOpen)

	if recorder.lastError() == nil {
		t.Fatal("expected the dial failure to be reported")
	}
}

func TestDisconnectClosesCleanly(t *testing.T) {
	dialer := &fakeDialer{}
	recorder := &subscriberRecorder{}
	cm := newTestConnectionManager(dialer, recorder.subscriber())

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Disconnect()

	if cm.State() != StateClosed {
		t.Fatal("expected state closed after disconnect, got ", cm.State())
	}

	if !dialer.conn(0).wasClosed() {
		t.Fatal("expected the connection to be closed")
	}

	if dialer.conn(0).writtenCount() == 0 {
		t.Fatal("expected a close frame to be written")
	}

	time.Sleep(50 * time.Millisecond)

	if dialer.dialCount() != 1 {
		t.Fatal("expected no reconnect after disconnect, got ", dialer.dialCount(), " dials")
	}

	events := recorder.connectivityEvents()
	if len(events) != 2 || events[1] != false {
		t.Fatal("expected a connectivity-down event, got ", events)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Disconnect()
	cm.Disconnect()
	cm.Disconnect()

	if cm.State() != StateClosed {
		t.Fatal("expected state closed, got ", cm.State())
	}
}

func TestShutdownPreventsFurtherConnects(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Shutdown()
	cm.Connect(testIdentity())

	time.Sleep(50 * time.Millisecond)

	if dialer.dialCount() != 1 {
		t.Fatal("expected no dials after shutdown, got ", dialer.dialCount())
	}
}

func TestSendWhenClosedDropsTheMessage(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})

	cm.Send(map[string]interface{}{"type": "ping"})

	if dialer.dialCount() != 0 {
		t.Fatal("send must never trigger a connection attempt")
	}
}

func TestSendWritesToTheOpenChannel(t *testing.T) {
	dialer := &fakeDialer{}
	cm := newTestConnectionManager(dialer, Subscriber{})
	defer cm.Shutdown()

	cm.Connect(testIdentity())
	waitFor(t, "channel open", cm.IsOpen)

	cm.Send(map[string]interface{}{"type": "ping"})

	if dialer.conn(0).writtenCount() != 1 {
		t.Fatal("expected the message to be written, got ", dialer.conn(0).writtenCount())
	}
}
