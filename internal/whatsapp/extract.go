package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/tribu-ia/don-confiado/internal/lifecycle"
)

// newInboundMessage flattens a whatsmeow message event into the shape the
// rest of the bot works with. The sender's phone number becomes the backend
// user id; the chat JID stays intact as the reply destination.
func newInboundMessage(evt *events.Message) *lifecycle.InboundMessage {
	return &lifecycle.InboundMessage{
		MessageID: evt.Info.ID,
		SenderID:  evt.Info.Sender.User,
		ChatID:    evt.Info.Chat.String(),
		Text:      extractText(evt.Message),
		IsEcho:    evt.Info.IsFromMe,
		Media:     extractMedia(evt.Message),
	}
}

// extractText pulls the human-readable text out of the message, whichever
// variant carries it. Media captions count as text.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := msg.GetImageMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetVideoMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetDocumentMessage().GetCaption(); t != "" {
		return t
	}
	return ""
}

// extractMedia returns a reference to the downloadable attachment, if any.
// The concrete proto message rides along as the opaque download handle.
func extractMedia(msg *waE2E.Message) *lifecycle.MediaRef {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return &lifecycle.MediaRef{
			Kind:     "image",
			MimeType: img.GetMimetype(),
			Size:     img.GetFileLength(),
			Ref:      img,
		}
	case msg.GetAudioMessage() != nil:
		audio := msg.GetAudioMessage()
		return &lifecycle.MediaRef{
			Kind:     "audio",
			MimeType: audio.GetMimetype(),
			Size:     audio.GetFileLength(),
			Ref:      audio,
		}
	case msg.GetVideoMessage() != nil:
		video := msg.GetVideoMessage()
		return &lifecycle.MediaRef{
			Kind:     "video",
			MimeType: video.GetMimetype(),
			Size:     video.GetFileLength(),
			Ref:      video,
		}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return &lifecycle.MediaRef{
			Kind:     "document",
			MimeType: doc.GetMimetype(),
			FileName: doc.GetFileName(),
			Size:     doc.GetFileLength(),
			Ref:      doc,
		}
	}
	return nil
}
