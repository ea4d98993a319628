package relay

import "encoding/json"

// Inbound and outbound event names. disconnect is transport-level and has
// no envelope.
const (
	EventRegister       = "register"
	EventPrivateMessage = "private_message"
	EventSystemNotice   = "system_notice"
)

// Payload carries one private message. Ciphertext and IV are opaque to the
// relay and pass through unchanged; no decryption is ever attempted here.
type Payload struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

type systemNotice struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Payload: payload})
}
