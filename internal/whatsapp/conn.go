package whatsapp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/tribu-ia/don-confiado/internal/lifecycle"
)

const eventBuffer = 32

// Conn adapts a whatsmeow client to the lifecycle.Conn interface: the
// library's callback events are translated into the single ordered event
// stream the session manager consumes.
type Conn struct {
	client *whatsmeow.Client
	store  *SessionStore
	logger *log.Logger

	events    chan lifecycle.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn builds a client over the given session store. The connection is
// not established until Dial.
func NewConn(sessionStore *SessionStore, logger *log.Logger) *Conn {
	store.SetOSInfo("Linux", store.GetWAVersion())
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()

	clientLog := waLog.Stdout("WhatsApp", "WARN", true)
	client := whatsmeow.NewClient(sessionStore.Device(), clientLog)

	return &Conn{
		client: client,
		store:  sessionStore,
		logger: logger,
		events: make(chan lifecycle.Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// SessionFactory returns a factory that opens the credential database at
// dbPath and builds a fresh connection over it, once per (re)connect.
func SessionFactory(dbPath string, logger *log.Logger) lifecycle.SessionFactory {
	return func(ctx context.Context) (lifecycle.Conn, lifecycle.CredentialStore, error) {
		sessionStore, err := OpenSessionStore(ctx, dbPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewConn(sessionStore, logger), sessionStore, nil
	}
}

// Registered reports whether the stored device has completed pairing.
func (c *Conn) Registered() bool {
	return c.client.Store.ID != nil
}

// Dial connects to WhatsApp and returns the event stream. For an
// unregistered device the QR channel is attached first so pairing challenges
// flow into the stream.
func (c *Conn) Dial(ctx context.Context) (<-chan lifecycle.Event, error) {
	c.client.AddEventHandler(c.handleEvent)

	if !c.Registered() {
		// GetQRChannel must be called before Connect on a fresh device.
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("qr channel: %v", err)
		}
		go c.pumpQR(qrChan)
		c.logger.Printf("Device not registered, QR pairing required")
	}

	if err := c.client.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %v", err)
	}
	return c.events, nil
}

func (c *Conn) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(&lifecycle.QREvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Printf("QR pairing succeeded")
		default:
			c.logger.Printf("QR channel closed: %s", item.Event)
		}
	}
}

func (c *Conn) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.emit(&lifecycle.ConnectedEvent{})
	case *events.PairSuccess:
		c.emit(&lifecycle.CredentialsEvent{})
	case *events.LoggedOut:
		c.emit(&lifecycle.DisconnectedEvent{
			LoggedOut: true,
			Reason:    fmt.Sprintf("logged out (%s)", e.Reason),
		})
	case *events.StreamError:
		c.emit(&lifecycle.DisconnectedEvent{
			Reason: fmt.Sprintf("stream error (code %s)", e.Code),
		})
	case *events.Disconnected:
		c.emit(&lifecycle.DisconnectedEvent{Reason: "socket disconnected"})
	case *events.Message:
		c.emit(&lifecycle.MessageEvent{Msg: newInboundMessage(e)})
	}
}

// emit delivers one event to the stream, giving up once the connection is
// closed so a stopped consumer never wedges the library's dispatcher.
func (c *Conn) emit(ev lifecycle.Event) {
	select {
	case <-c.done:
	case c.events <- ev:
	}
}

// SendText sends a plain text message to the given chat.
func (c *Conn) SendText(ctx context.Context, chatID, text string) error {
	recipient, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %v", chatID, err)
	}

	msg := &waE2E.Message{
		Conversation: proto.String(text),
	}
	opts := whatsmeow.SendRequestExtra{
		ID: c.client.GenerateMessageID(),
	}

	_, err = c.client.SendMessage(ctx, recipient, msg, opts)
	if err != nil {
		return fmt.Errorf("send message: %v", err)
	}
	return nil
}

// MarkRead emits a read receipt for the given message.
func (c *Conn) MarkRead(ctx context.Context, msg *lifecycle.InboundMessage) error {
	chat, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %v", msg.ChatID, err)
	}
	sender := types.JID{User: msg.SenderID, Server: types.DefaultUserServer}

	ids := []types.MessageID{types.MessageID(msg.MessageID)}
	if err := c.client.MarkRead(ids, time.Now(), chat, sender, types.ReceiptTypeRead); err != nil {
		return fmt.Errorf("mark read: %v", err)
	}
	return nil
}

// Download fetches and decrypts the media payload behind a MediaRef.
func (c *Conn) Download(ctx context.Context, media *lifecycle.MediaRef) ([]byte, error) {
	msg, ok := media.Ref.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("media ref is not downloadable")
	}
	data, err := c.client.Download(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("download media: %v", err)
	}
	return data, nil
}

// Logout invalidates the session on the server side.
func (c *Conn) Logout(ctx context.Context) error {
	if err := c.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %v", err)
	}
	return nil
}

// Close disconnects the client, stops event delivery and releases the
// credential database connection.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.RemoveEventHandlers()
		c.client.Disconnect()
		c.store.Close()
	})
}
