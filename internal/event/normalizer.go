package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// HandshakeSentinel is the reserved type value the backend sends on the first
// frame after the channel opens.  It is not a notification.
const HandshakeSentinel = "connected"

// Text extracted from a payload that starts with a brace and exceeds this
// length is almost certainly a mis-routed serialized object, not a message a
// human should read.
const rawJsonGuardMinLength = 50

const (
	fallbackTextWithReference = "You have a new update"
	fallbackTextGeneric       = "New system notification"
	fallbackLabelPrefix       = "New event: "
)

// NormalizedEvent is the canonical record every loosely-shaped upstream
// payload is reduced to.  Immutable once created.
type NormalizedEvent struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Severity      Severity  `json:"severity"`
	CorrelationID string    `json:"correlation_id"`
	Kind          string    `json:"kind"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Normalize reduces an arbitrary upstream payload to a NormalizedEvent.  The
// upstream event producers nest their payloads inconsistently, so the source
// of truth is probed in priority order: data.data, then data, then the
// payload itself.  A nil result means the payload carried nothing worth
// surfacing and is intentionally dropped.
func Normalize(payload map[string]interface{}) *NormalizedEvent {
	if payload == nil {
		return nil
	}

	topLevelType := stringField(payload, "type")
	if topLevelType == HandshakeSentinel {
		return nil
	}

	source := pickSource(payload)

	text := stringField(source, "message")
	correlationID := stringField(source, "reference_id")
	severity := pickSeverity(source, topLevelType)
	kind := stringField(payload, "event_type")

	if text == "" && kind != "" {
		text = fallbackLabelPrefix + humanizeEventKind(kind)
	}

	if looksLikeRawJson(text) {
		if correlationID != "" {
			text = fallbackTextWithReference
		} else {
			text = fallbackTextGeneric
		}
	}

	if text == "" {
		return nil
	}

	return &NormalizedEvent{
		ID:            uuid.NewString(),
		Text:          text,
		Severity:      severity,
		CorrelationID: correlationID,
		Kind:          kind,
		ReceivedAt:    time.Now(),
	}
}

// pickSource walks down the known nesting shapes and returns the innermost
// object that carries the notification fields.
func pickSource(payload map[string]interface{}) map[string]interface{} {
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if inner, ok := data["data"].(map[string]interface{}); ok {
			if hasNotificationFields(inner) {
				return inner
			}
		}
		if hasNotificationFields(data) {
			return data
		}
	}
	return payload
}

func hasNotificationFields(obj map[string]interface{}) bool {
	if _, ok := obj["message"]; ok {
		return true
	}
	if _, ok := obj["reference_id"]; ok {
		return true
	}
	return false
}

func pickSeverity(source map[string]interface{}, topLevelType string) Severity {
	if severity, ok := parseSeverity(stringField(source, "type")); ok {
		return severity
	}
	if severity, ok := parseSeverity(topLevelType); ok {
		return severity
	}
	return SeverityInfo
}

func parseSeverity(value string) (Severity, bool) {
	switch Severity(value) {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return Severity(value), true
	}
	return SeverityInfo, false
}

func looksLikeRawJson(text string) bool {
	return strings.HasPrefix(text, "{") && len(text) > rawJsonGuardMinLength
}

func humanizeEventKind(kind string) string {
	replacer := strings.NewReplacer("_", " ", "-", " ", ".", " ")
	return replacer.Replace(kind)
}

func stringField(obj map[string]interface{}, key string) string {
	value, _ := obj[key].(string)
	return value
}
