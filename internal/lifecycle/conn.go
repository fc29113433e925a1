package lifecycle

import "context"

// MediaRef describes downloadable media attached to an inbound message.
// Ref is an opaque handle understood by the Conn that produced the message.
type MediaRef struct {
	Kind     string // image, audio, video, document
	MimeType string
	FileName string
	Size     uint64
	Ref      any
}

// InboundMessage is one received chat event.
type InboundMessage struct {
	MessageID string
	SenderID  string // peer phone number, used as the backend user id
	ChatID    string // reply destination JID
	Text      string
	IsEcho    bool // the session's own sent message surfacing as an event
	Media     *MediaRef
}

// Conn is one live connection to the messaging network. A Conn is built,
// dialed and torn down as a unit; reconnecting means constructing a new one.
type Conn interface {
	// Dial establishes the connection and returns the event stream. The
	// channel is closed when the connection is torn down.
	Dial(ctx context.Context) (<-chan Event, error)

	// Registered reports whether the stored credentials represent a fully
	// paired device (no QR handshake needed).
	Registered() bool

	SendText(ctx context.Context, chatID, text string) error
	MarkRead(ctx context.Context, msg *InboundMessage) error
	Download(ctx context.Context, media *MediaRef) ([]byte, error)

	// Logout invalidates the session on the server side.
	Logout(ctx context.Context) error

	Close()
}

// Handler consumes inbound messages dispatched by the manager. The Conn is
// the send primitive for replies and receipts.
type Handler interface {
	HandleInbound(ctx context.Context, conn Conn, msg *InboundMessage)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn Conn, msg *InboundMessage)

func (f HandlerFunc) HandleInbound(ctx context.Context, conn Conn, msg *InboundMessage) {
	f(ctx, conn, msg)
}
