package realtime

import "encoding/json"

// Inbound message types
const (
	TypeSubscribeCandles   = "subscribe_candles"
	TypeUnsubscribeCandles = "unsubscribe_candles"
	TypeSubscribeSignals   = "subscribe_signals"
	TypeUnsubscribeSignals = "unsubscribe_signals"
)

// Outbound message types
const (
	TypeCandleUpdate   = "candle_update"
	TypeSignalUpdate   = "signal_update"
	TypeAlertTriggered = "alert_triggered"
	TypeError          = "error"
)

// Error codes sent to misbehaving clients
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeUnknownType    = "UNKNOWN_TYPE"
)

// Message is the envelope for every inbound client frame
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribePayload is the payload of every subscribe/unsubscribe frame.
// Interval, StrategyID and Provider are optional for signal frames and
// default to "1m", the default strategy and the configured provider.
type SubscribePayload struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	StrategyID string `json:"strategyId"`
	Provider   string `json:"provider"`
}

// OutboundMessage is the envelope for every server-to-client frame
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ErrorPayload is the payload of an error frame
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorMessage(code, message string) OutboundMessage {
	return OutboundMessage{
		Type:    TypeError,
		Payload: ErrorPayload{Message: message, Code: code},
	}
}
