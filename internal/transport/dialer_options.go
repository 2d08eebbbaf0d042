package transport

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsdeck/booking-sync/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

// Conn is the subset of the websocket connection the connection manager
// needs.  Tests substitute their own implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport connection to the notification channel.
type Dialer interface {
	Dial(url string, requestHeader http.Header) (Conn, error)
}

type DialerOptionsFunc func(*websocket.Dialer) error

func WithHandshakeTimeout(timeout time.Duration) DialerOptionsFunc {
	return func(dialer *websocket.Dialer) error {
		dialer.HandshakeTimeout = timeout
		return nil
	}
}

func WithTlsConfig(tlsConfig *tls.Config) DialerOptionsFunc {
	return func(dialer *websocket.Dialer) error {
		dialer.TLSClientConfig = tlsConfig
		return nil
	}
}

type websocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebsocketDialer(dialerConfigFuncs ...DialerOptionsFunc) (Dialer, error) {
	dialer := &websocket.Dialer{
		Proxy: http.ProxyFromEnvironment,
	}

	for _, opt := range dialerConfigFuncs {
		err := opt(dialer)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to build websocket Dialer")
			return nil, err
		}
	}

	return &websocketDialer{dialer: dialer}, nil
}

func (wd *websocketDialer) Dial(url string, requestHeader http.Header) (Conn, error) {
	conn, _, err := wd.dialer.Dial(url, requestHeader)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
