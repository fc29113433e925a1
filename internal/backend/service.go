package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
)

const historyWindow = 20

// ChatResult is one answered turn: the reply plus what the intention
// pipeline did with the message.
type ChatResult struct {
	Reply         string
	Intention     Intention
	SavedEntities []string
}

// Service ties history, intention detection, entity persistence and the
// responder together into one chat turn.
type Service struct {
	history    *HistoryStore
	entities   *EntityStore
	responder  Responder
	classifier Classifier
	logger     *log.Logger
}

// NewService creates the chat service. The classifier may be nil, which
// disables the intention pipeline.
func NewService(history *HistoryStore, entities *EntityStore, responder Responder, classifier Classifier, logger *log.Logger) *Service {
	return &Service{
		history:    history,
		entities:   entities,
		responder:  responder,
		classifier: classifier,
		logger:     logger,
	}
}

// Chat answers one message. Intention detection and entity persistence are
// best effort around the reply: their failures are logged and the
// conversation continues.
func (s *Service) Chat(ctx context.Context, req *chatapi.ChatRequest) (*ChatResult, error) {
	var media *Media
	if req.FileBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.FileBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid file_base64: %w", err)
		}
		media = &Media{MimeType: req.MimeType, Data: data}
	}

	history, err := s.history.RecentMessages(req.UserID, historyWindow)
	if err != nil {
		s.logger.Printf("Failed to load history for %s: %v", req.UserID, err)
	}

	result := &ChatResult{Intention: IntentionNone}
	if s.classifier != nil {
		result.Intention, result.SavedEntities = s.runIntentionPipeline(ctx, history, req.Message, media)
	}

	reply, err := s.responder.Respond(ctx, history, req.Message, media)
	if err != nil {
		return nil, err
	}
	result.Reply = reply

	if err := s.history.SaveMessage(req.UserID, "user", req.Message); err != nil {
		s.logger.Printf("Failed to save user message for %s: %v", req.UserID, err)
	}
	if err := s.history.SaveMessage(req.UserID, "assistant", reply); err != nil {
		s.logger.Printf("Failed to save assistant reply for %s: %v", req.UserID, err)
	}

	return result, nil
}

// runIntentionPipeline classifies the message, enriches the result with
// invoice data extracted from an attached image, and persists the entities
// the intention asks for.
func (s *Service) runIntentionPipeline(ctx context.Context, history []Message, message string, media *Media) (Intention, []string) {
	var invoice *Invoice
	if media != nil && strings.HasPrefix(media.MimeType, "image/") {
		var err error
		invoice, err = s.classifier.ExtractInvoice(ctx, media)
		if err != nil {
			s.logger.Printf("Invoice extraction failed: %v", err)
		}
	}

	result, err := s.classifier.Classify(ctx, history, message, media)
	if err != nil {
		s.logger.Printf("Intention classification failed: %v", err)
		return IntentionNone, nil
	}
	result = enrichIntention(result, invoice)

	return result.Intention, s.saveEntities(result)
}

// saveEntities persists whatever the detected intention extracted. Each
// save is independent and best effort.
func (s *Service) saveEntities(result *UserIntention) []string {
	var saved []string

	if result.Intention == IntentionCreateProvider && result.Provider != nil {
		p := result.Provider
		tercero, err := s.entities.SaveTercero(p.Nombre, p.NIT, p.Telefono, p.Direccion, "proveedor")
		if err != nil {
			s.logger.Printf("Failed to save provider %q: %v", p.Nombre, err)
		} else {
			s.logger.Printf("Provider %q saved with id %d", tercero.RazonSocial, tercero.ID)
			saved = append(saved, "provider")
		}
	}

	if result.Intention == IntentionCreateClient && result.Client != nil {
		c := result.Client
		tercero, err := s.entities.SaveTercero(c.Nombre, c.NIT, "", c.Direccion, "cliente")
		if err != nil {
			s.logger.Printf("Failed to save client %q: %v", c.Nombre, err)
		} else {
			s.logger.Printf("Client %q saved with id %d", tercero.RazonSocial, tercero.ID)
			saved = append(saved, "client")
		}
	}

	if result.Intention == IntentionCreateProduct && result.Product != nil {
		producto, err := s.entities.SaveProducto(result.Product)
		if err != nil {
			s.logger.Printf("Failed to save product %q: %v", result.Product.Nombre, err)
		} else {
			s.logger.Printf("Product %q saved with SKU %s", producto.Nombre, producto.SKU)
			saved = append(saved, "product")
		}
	}

	return saved
}

// Close releases the service's resources.
func (s *Service) Close() {
	s.responder.Close()
	if err := s.history.Close(); err != nil {
		s.logger.Printf("Failed to close history store: %v", err)
	}
	if s.entities != nil {
		if err := s.entities.Close(); err != nil {
			s.logger.Printf("Failed to close entity store: %v", err)
		}
	}
}
