package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// TLS failures
	ErrTLSHandshake = errors.New("websocket tls handshake failed")

	// Network / transport failures
	ErrChannelConnect    = errors.New("websocket connection failed")
	ErrConnectionLost    = errors.New("websocket connection lost")
	ErrConnectionRefused = errors.New("websocket connection refused")
	ErrHostUnreachable   = errors.New("websocket host unreachable")
	ErrTimeout           = errors.New("websocket connection timeout")
	ErrEOF               = errors.New("websocket connection closed unexpectedly")
	ErrBrokenPipe        = errors.New("websocket broken pipe")

	// Protocol failures
	ErrBadHandshake   = errors.New("websocket handshake rejected")
	ErrAbnormalClose  = errors.New("websocket closed abnormally")
	ErrPolicyViolated = errors.New("websocket closed for policy violation")
)

const (
	// TLS
	CodeTLSHandshake = 495 // non-standard, indicates TLS handshake failure

	// Network / transport (mostly errno-derived)
	CodeConnectionLost    = 104 // ECONNRESET
	CodeConnectionRefused = 111 // ECONNREFUSED
	CodeHostUnreachable   = 113 // EHOSTUNREACH
	CodeChannelConnect    = 520 // generic connect failure
	CodeTimeout           = 408 // i/o timeout
	CodeEOF               = 499 // client closed / eof
	CodeBrokenPipe        = 532 // arbitrary for broken pipe

	// Protocol (websocket close codes)
	CodeBadHandshake = 400
)

const (
	CategoryTLS      = "tls"
	CategoryNetwork  = "network"
	CategoryProtocol = "protocol"
	CategoryRuntime  = "runtime"
	CategoryUnknown  = "unknown"
)

type ConnectError struct {
	Code     int
	Kind     error
	Cause    error
	Category string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *ConnectError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Kind
}

// Is lets errors.Is match on the sentinel Kind (e.g. ErrTLSHandshake)
func (e *ConnectError) Is(target error) bool {
	return target == e.Kind
}

func newConnectError(code int, category string, kind error, cause error) error {
	return &ConnectError{
		Code:     code,
		Kind:     kind,
		Cause:    cause,
		Category: category,
	}
}

func classifyDialError(err error) error {
	var tlsHeaderErr *tls.RecordHeaderError
	var unknownAuthErr x509.UnknownAuthorityError
	var certInvalidErr *x509.CertificateInvalidError
	var hostErr x509.HostnameError
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return newConnectError(CodeTimeout, CategoryNetwork, ErrTimeout, err)
	}

	if errors.As(err, &tlsHeaderErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &certInvalidErr) || errors.As(err, &hostErr) {
		return newConnectError(CodeTLSHandshake, CategoryTLS, ErrTLSHandshake, err)
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return newConnectError(CodeBadHandshake, CategoryProtocol, ErrBadHandshake, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(err, syscall.ECONNREFUSED):
			return newConnectError(CodeConnectionRefused, CategoryNetwork, ErrConnectionRefused, err)
		case errors.Is(err, syscall.ECONNRESET):
			return newConnectError(CodeConnectionLost, CategoryNetwork, ErrConnectionLost, err)
		case errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH):
			return newConnectError(CodeHostUnreachable, CategoryNetwork, ErrHostUnreachable, err)
		}
		return newConnectError(CodeChannelConnect, CategoryNetwork, ErrChannelConnect, err)
	}

	if errors.Is(err, io.EOF) {
		return newConnectError(CodeEOF, CategoryNetwork, ErrEOF, err)
	}
	if errors.Is(err, syscall.EPIPE) {
		return newConnectError(CodeBrokenPipe, CategoryNetwork, ErrBrokenPipe, err)
	}

	// Catch textual hints when errors aren't typed
	lowerMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerMsg, "connection refused"):
		return newConnectError(CodeConnectionRefused, CategoryNetwork, ErrConnectionRefused, err)
	case strings.Contains(lowerMsg, "host unreachable"):
		return newConnectError(CodeHostUnreachable, CategoryNetwork, ErrHostUnreachable, err)
	case strings.Contains(lowerMsg, "timeout"):
		return newConnectError(CodeTimeout, CategoryNetwork, ErrTimeout, err)
	case strings.Contains(lowerMsg, "eof"):
		return newConnectError(CodeEOF, CategoryNetwork, ErrEOF, err)
	case strings.Contains(lowerMsg, "broken pipe"):
		return newConnectError(CodeBrokenPipe, CategoryNetwork, ErrBrokenPipe, err)
	}

	return newConnectError(CodeChannelConnect, CategoryUnknown, ErrChannelConnect, err)
}

func classifyCloseError(err error) error {
	if err == nil {
		return newConnectError(CodeChannelConnect, CategoryRuntime, ErrConnectionLost, errors.New("connection lost"))
	}

	if ce, ok := err.(*ConnectError); ok {
		return ce
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseGoingAway:
			return newConnectError(closeErr.Code, CategoryProtocol, ErrConnectionLost, err)
		case websocket.ClosePolicyViolation:
			return newConnectError(closeErr.Code, CategoryProtocol, ErrPolicyViolated, err)
		default:
			return newConnectError(closeErr.Code, CategoryProtocol, ErrAbnormalClose, err)
		}
	}

	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return newConnectError(CodeTimeout, CategoryRuntime, ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) {
		return newConnectError(CodeEOF, CategoryRuntime, ErrEOF, err)
	}
	if errors.Is(err, syscall.EPIPE) {
		return newConnectError(CodeBrokenPipe, CategoryRuntime, ErrBrokenPipe, err)
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return newConnectError(CodeConnectionLost, CategoryRuntime, ErrConnectionLost, err)
	}

	lowerMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerMsg, "timeout"):
		return newConnectError(CodeTimeout, CategoryRuntime, ErrTimeout, err)
	case strings.Contains(lowerMsg, "broken pipe"):
		return newConnectError(CodeBrokenPipe, CategoryRuntime, ErrBrokenPipe, err)
	case strings.Contains(lowerMsg, "connection reset"):
		return newConnectError(CodeConnectionLost, CategoryRuntime, ErrConnectionLost, err)
	}

	return newConnectError(CodeChannelConnect, CategoryRuntime, ErrConnectionLost, err)
}

// ClassifyCloseError exposes classification for external handlers.
func ClassifyCloseError(err error) *ConnectError {
	classified := classifyCloseError(err)
	if ce, ok := classified.(*ConnectError); ok {
		return ce
	}
	return &ConnectError{
		Code:     CodeChannelConnect,
		Kind:     ErrConnectionLost,
		Cause:    err,
		Category: CategoryRuntime,
	}
}
