// Package relay bridges inbound chat messages to the conversational backend
// and routes the backend's reply to the originating peer.
package relay

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
	"github.com/tribu-ia/don-confiado/internal/lifecycle"
)

// fallbackReply is sent when the backend responds without any reply text.
const fallbackReply = "Lo siento, no entendí tu mensaje. ¿Puedes intentarlo de nuevo?"

const thumbnailWidth = 640

// Backend is the chat backend call the relay depends on.
type Backend interface {
	Chat(ctx context.Context, req *chatapi.ChatRequest) (*chatapi.ChatResponse, error)
}

// Relay forwards each inbound message to the backend and sends the reply
// back. Backend failures are logged and swallowed: the peer simply gets no
// reply.
type Relay struct {
	backend    Backend
	logger     *log.Logger
	limiter    *rate.Limiter
	mediaLimit uint64
}

// New creates a relay. mediaLimit bounds the attachment size forwarded to
// the backend, in bytes.
func New(backend Backend, mediaLimit uint64, logger *log.Logger) *Relay {
	return &Relay{
		backend:    backend,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
		mediaLimit: mediaLimit,
	}
}

// HandleInbound processes one inbound message end to end.
func (r *Relay) HandleInbound(ctx context.Context, conn lifecycle.Conn, msg *lifecycle.InboundMessage) {
	// Own sent messages surface as inbound events too; replying to them
	// would loop forever.
	if msg.IsEcho {
		return
	}

	// Read receipt is best effort, never blocks the reply.
	if err := conn.MarkRead(ctx, msg); err != nil {
		r.logger.Printf("Failed to mark message %s as read: %v", msg.MessageID, err)
	}

	req := &chatapi.ChatRequest{
		Message: msg.Text,
		UserID:  msg.SenderID,
	}
	if msg.Media != nil {
		r.attachMedia(ctx, conn, msg, req)
	}

	resp, err := r.backend.Chat(ctx, req)
	if err != nil {
		// Silent from the peer's perspective: no reply is sent at all.
		r.logger.Printf("Backend call failed for message %s from %s: %v", msg.MessageID, msg.SenderID, err)
		return
	}

	reply := resp.Text()
	if reply == "" {
		reply = fallbackReply
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return
	}
	if err := conn.SendText(ctx, msg.ChatID, reply); err != nil {
		r.logger.Printf("Failed to send reply to %s: %v", msg.ChatID, err)
	}
}

// attachMedia downloads the attachment and adds it to the request. Any
// failure degrades to a text-only request rather than dropping the message.
func (r *Relay) attachMedia(ctx context.Context, conn lifecycle.Conn, msg *lifecycle.InboundMessage, req *chatapi.ChatRequest) {
	media := msg.Media

	if media.Size > r.mediaLimit {
		if media.Kind != "video" {
			r.logger.Printf("Skipping %s attachment of %d bytes (limit %d)", media.Kind, media.Size, r.mediaLimit)
			return
		}
		// Oversized videos are summarized by a single still frame.
		data, err := conn.Download(ctx, media)
		if err != nil {
			r.logger.Printf("Failed to download video for thumbnail: %v", err)
			return
		}
		thumb, err := videoThumbnail(data, thumbnailWidth)
		if err != nil {
			r.logger.Printf("Failed to extract video thumbnail: %v", err)
			return
		}
		req.MimeType = "image/jpeg"
		req.FileBase64 = base64.StdEncoding.EncodeToString(thumb)
		return
	}

	data, err := conn.Download(ctx, media)
	if err != nil {
		r.logger.Printf("Failed to download %s attachment: %v", media.Kind, err)
		return
	}
	req.MimeType = media.MimeType
	req.FileBase64 = base64.StdEncoding.EncodeToString(data)
}
