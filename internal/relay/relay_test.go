package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
	"github.com/tribu-ia/don-confiado/internal/lifecycle"
)

type fakeBackend struct {
	resp  *chatapi.ChatResponse
	err   error
	calls []*chatapi.ChatRequest
}

func (b *fakeBackend) Chat(ctx context.Context, req *chatapi.ChatRequest) (*chatapi.ChatResponse, error) {
	b.calls = append(b.calls, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.resp, nil
}

type fakeConn struct {
	sent        []string
	sentTo      []string
	marked      []string
	media       []byte
	downloadErr error
	sendErr     error
}

func (c *fakeConn) Dial(ctx context.Context) (<-chan lifecycle.Event, error) { return nil, nil }
func (c *fakeConn) Registered() bool                                         { return true }
func (c *fakeConn) Logout(ctx context.Context) error                         { return nil }
func (c *fakeConn) Close()                                                   {}

func (c *fakeConn) SendText(ctx context.Context, chatID, text string) error {
	c.sent = append(c.sent, text)
	c.sentTo = append(c.sentTo, chatID)
	return c.sendErr
}

func (c *fakeConn) MarkRead(ctx context.Context, msg *lifecycle.InboundMessage) error {
	c.marked = append(c.marked, msg.MessageID)
	return nil
}

func (c *fakeConn) Download(ctx context.Context, media *lifecycle.MediaRef) ([]byte, error) {
	if c.downloadErr != nil {
		return nil, c.downloadErr
	}
	return c.media, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func textMessage(text string) *lifecycle.InboundMessage {
	return &lifecycle.InboundMessage{
		MessageID: "msg-1",
		SenderID:  "573001112233",
		ChatID:    "573001112233@s.whatsapp.net",
		Text:      text,
	}
}

func TestHandleInbound_EchoIgnored(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "never"}}
	conn := &fakeConn{}
	r := New(backend, 1<<20, testLogger())

	msg := textMessage("hola")
	msg.IsEcho = true
	r.HandleInbound(context.Background(), conn, msg)

	if len(backend.calls) != 0 {
		t.Error("backend called for an echo message")
	}
	if len(conn.sent) != 0 {
		t.Error("reply sent for an echo message")
	}
	if len(conn.marked) != 0 {
		t.Error("echo message marked as read")
	}
}

func TestHandleInbound_ReplyDelivered(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "X"}}
	conn := &fakeConn{}
	r := New(backend, 1<<20, testLogger())

	r.HandleInbound(context.Background(), conn, textMessage("hello"))

	if len(backend.calls) != 1 {
		t.Fatalf("backend called %d times, want 1", len(backend.calls))
	}
	if backend.calls[0].Message != "hello" || backend.calls[0].UserID != "573001112233" {
		t.Errorf("backend request = %+v", backend.calls[0])
	}
	if len(conn.sent) != 1 || conn.sent[0] != "X" {
		t.Fatalf("sent = %v, want exactly [X]", conn.sent)
	}
	if conn.sentTo[0] != "573001112233@s.whatsapp.net" {
		t.Errorf("reply destination = %q", conn.sentTo[0])
	}
	if len(conn.marked) != 1 {
		t.Error("message not marked as read")
	}
}

func TestHandleInbound_EmptyResponseSendsFallback(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{}}
	conn := &fakeConn{}
	r := New(backend, 1<<20, testLogger())

	r.HandleInbound(context.Background(), conn, textMessage("hola"))

	if len(conn.sent) != 1 || conn.sent[0] != fallbackReply {
		t.Fatalf("sent = %v, want the fallback reply", conn.sent)
	}
}

func TestHandleInbound_BackendFailureIsSilent(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend returned 500 Internal Server Error")}
	conn := &fakeConn{}
	r := New(backend, 1<<20, testLogger())

	r.HandleInbound(context.Background(), conn, textMessage("hello"))

	if len(conn.sent) != 0 {
		t.Fatalf("sent = %v, want no reply on backend failure", conn.sent)
	}
}

func TestHandleInbound_MediaForwardedBase64(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "ok"}}
	conn := &fakeConn{media: []byte("jpegbytes")}
	r := New(backend, 1<<20, testLogger())

	msg := textMessage("mira")
	msg.Media = &lifecycle.MediaRef{Kind: "image", MimeType: "image/jpeg", Size: 9}
	r.HandleInbound(context.Background(), conn, msg)

	if len(backend.calls) != 1 {
		t.Fatal("backend not called")
	}
	req := backend.calls[0]
	if req.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q", req.MimeType)
	}
	want := base64.StdEncoding.EncodeToString([]byte("jpegbytes"))
	if req.FileBase64 != want {
		t.Errorf("FileBase64 = %q, want %q", req.FileBase64, want)
	}
}

func TestHandleInbound_DownloadFailureDegradesToText(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "ok"}}
	conn := &fakeConn{downloadErr: errors.New("media gone")}
	r := New(backend, 1<<20, testLogger())

	msg := textMessage("mira esto")
	msg.Media = &lifecycle.MediaRef{Kind: "image", MimeType: "image/jpeg", Size: 9}
	r.HandleInbound(context.Background(), conn, msg)

	if len(backend.calls) != 1 {
		t.Fatal("backend not called")
	}
	req := backend.calls[0]
	if req.Message != "mira esto" {
		t.Errorf("Message = %q", req.Message)
	}
	if req.FileBase64 != "" || req.MimeType != "" {
		t.Errorf("media fields populated after failed download: %+v", req)
	}
	if len(conn.sent) != 1 {
		t.Error("text reply not delivered in degraded mode")
	}
}

func TestHandleInbound_OversizedNonVideoSkipped(t *testing.T) {
	backend := &fakeBackend{resp: &chatapi.ChatResponse{Reply: "ok"}}
	conn := &fakeConn{media: []byte("huge")}
	r := New(backend, 100, testLogger())

	msg := textMessage("el documento")
	msg.Media = &lifecycle.MediaRef{Kind: "document", MimeType: "application/pdf", Size: 500}
	r.HandleInbound(context.Background(), conn, msg)

	if len(backend.calls) != 1 {
		t.Fatal("backend not called")
	}
	if backend.calls[0].FileBase64 != "" {
		t.Error("oversized attachment forwarded despite limit")
	}
}
