package lifecycle

// Event is the interface for all connection events delivered by a Conn.
// Events are consumed one at a time from a single channel, so handlers never
// see two events of the same session in flight at once.
type Event interface {
	EventType() string
}

// Event types
const (
	EventTypeQR           = "qr"
	EventTypeCredentials  = "credentials"
	EventTypeConnected    = "connected"
	EventTypeDisconnected = "disconnected"
	EventTypeMessage      = "message"
)

// QREvent carries a new pairing challenge that must be rendered for the
// operator to scan.
type QREvent struct {
	Code string
}

func (e *QREvent) EventType() string { return EventTypeQR }

// CredentialsEvent signals that the underlying library rotated the session
// key material. The manager must durably persist credentials before
// consuming the next event.
type CredentialsEvent struct{}

func (e *CredentialsEvent) EventType() string { return EventTypeCredentials }

// ConnectedEvent signals that the connection is open and authenticated.
type ConnectedEvent struct{}

func (e *ConnectedEvent) EventType() string { return EventTypeConnected }

// DisconnectedEvent signals that the connection closed. LoggedOut marks a
// terminal closure; anything else is transient and triggers a reconnect.
type DisconnectedEvent struct {
	LoggedOut bool
	Reason    string
}

func (e *DisconnectedEvent) EventType() string { return EventTypeDisconnected }

// MessageEvent carries one inbound chat message.
type MessageEvent struct {
	Msg *InboundMessage
}

func (e *MessageEvent) EventType() string { return EventTypeMessage }
