package ws

// Inbound message types accepted from a connection.
const (
	AuthenticateMessage = "authenticate"
	SubscribeMessage    = "subscribe"
	UnsubscribeMessage  = "unsubscribe"
)

// Outbound message types emitted to a connection.
const (
	ConnectedMessage     = "connected"
	AuthenticatedMessage = "authenticated"
	SubscribedMessage    = "subscribed"
	UnsubscribedMessage  = "unsubscribed"
	BroadcastMessage     = "broadcast"
	DirectMessage        = "message"
	ErrorMessage         = "error"
)

// Envelope is the single JSON frame shape used in both directions; unused
// fields are omitted per message type.
type Envelope struct {
	Type     string `json:"type"`
	Handle   string `json:"handle,omitempty"`
	Token    string `json:"token,omitempty"`
	Identity string `json:"identity,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Payload  any    `json:"payload,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
