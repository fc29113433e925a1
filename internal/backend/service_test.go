package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/tribu-ia/don-confiado/internal/chatapi"
)

type fakeResponder struct {
	reply      string
	err        error
	gotHistory []Message
	gotMessage string
	gotMedia   *Media
}

func (f *fakeResponder) Respond(ctx context.Context, history []Message, message string, media *Media) (string, error) {
	f.gotHistory = history
	f.gotMessage = message
	f.gotMedia = media
	return f.reply, f.err
}

func (f *fakeResponder) Close() {}

type fakeClassifier struct {
	result     *UserIntention
	invoice    *Invoice
	err        error
	extractErr error
	classified bool
	extracted  bool
}

func (f *fakeClassifier) Classify(ctx context.Context, history []Message, message string, media *Media) (*UserIntention, error) {
	f.classified = true
	return f.result, f.err
}

func (f *fakeClassifier) ExtractInvoice(ctx context.Context, media *Media) (*Invoice, error) {
	f.extracted = true
	return f.invoice, f.extractErr
}

func newTestService(t *testing.T, responder Responder, classifier Classifier) *Service {
	t.Helper()
	entities, err := NewEntityStore(filepath.Join(t.TempDir(), "entities.db"))
	if err != nil {
		t.Fatalf("NewEntityStore: %v", err)
	}
	t.Cleanup(func() { entities.Close() })
	return NewService(openTestStore(t), entities, responder, classifier, log.New(io.Discard, "", 0))
}

func TestServiceChat_ReplyAndHistory(t *testing.T) {
	responder := &fakeResponder{reply: "claro que sí"}
	svc := newTestService(t, responder, nil)

	result, err := svc.Chat(context.Background(), &chatapi.ChatRequest{
		Message: "hola",
		UserID:  "u1",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Reply != "claro que sí" {
		t.Errorf("reply = %q", result.Reply)
	}
	if result.Intention != IntentionNone {
		t.Errorf("intention = %q, want none without a classifier", result.Intention)
	}

	// Both turns of the exchange must be stored for the next call.
	msgs, err := svc.history.RecentMessages("u1", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}

	responder.reply = "segundo turno"
	if _, err := svc.Chat(context.Background(), &chatapi.ChatRequest{Message: "sigo aquí", UserID: "u1"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(responder.gotHistory) != 2 {
		t.Errorf("responder received %d history turns, want 2", len(responder.gotHistory))
	}
}

func TestServiceChat_MediaDecoded(t *testing.T) {
	responder := &fakeResponder{reply: "veo una factura"}
	svc := newTestService(t, responder, nil)

	payload := []byte{0xFF, 0xD8, 0xFF}
	_, err := svc.Chat(context.Background(), &chatapi.ChatRequest{
		Message:    "qué es esto",
		UserID:     "u1",
		MimeType:   "image/jpeg",
		FileBase64: base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if responder.gotMedia == nil {
		t.Fatal("responder received no media")
	}
	if responder.gotMedia.MimeType != "image/jpeg" || len(responder.gotMedia.Data) != len(payload) {
		t.Errorf("media = %+v", responder.gotMedia)
	}
}

func TestServiceChat_BadBase64Rejected(t *testing.T) {
	svc := newTestService(t, &fakeResponder{reply: "x"}, nil)

	_, err := svc.Chat(context.Background(), &chatapi.ChatRequest{
		Message:    "hola",
		UserID:     "u1",
		FileBase64: "not!!base64",
	})
	if err == nil {
		t.Fatal("Chat accepted malformed base64")
	}
}

func TestServiceChat_ResponderErrorPropagates(t *testing.T) {
	svc := newTestService(t, &fakeResponder{err: errors.New("quota exceeded")}, nil)

	_, err := svc.Chat(context.Background(), &chatapi.ChatRequest{Message: "hola", UserID: "u1"})
	if err == nil {
		t.Fatal("Chat swallowed responder error")
	}

	// A failed turn must not pollute history.
	msgs, err2 := svc.history.RecentMessages("u1", 10)
	if err2 != nil {
		t.Fatalf("RecentMessages: %v", err2)
	}
	if len(msgs) != 0 {
		t.Errorf("stored %d messages after failed turn, want 0", len(msgs))
	}
}

func TestServiceChat_ProviderIntentionPersisted(t *testing.T) {
	classifier := &fakeClassifier{
		result: &UserIntention{
			Intention: IntentionCreateProvider,
			Provider:  &ProviderPayload{Nombre: "Distribuidora El Sol", NIT: "900123456"},
		},
	}
	svc := newTestService(t, &fakeResponder{reply: "proveedor registrado"}, classifier)

	result, err := svc.Chat(context.Background(), &chatapi.ChatRequest{Message: "crea ese proveedor", UserID: "u1"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Intention != IntentionCreateProvider {
		t.Errorf("intention = %q", result.Intention)
	}
	if len(result.SavedEntities) != 1 || result.SavedEntities[0] != "provider" {
		t.Errorf("saved entities = %v", result.SavedEntities)
	}

	tercero, err := svc.entities.FindTerceroByDocumento("900123456")
	if err != nil {
		t.Fatalf("FindTerceroByDocumento: %v", err)
	}
	if tercero == nil {
		t.Fatal("provider was not persisted")
	}
	if tercero.TipoTercero != "proveedor" || tercero.RazonSocial != "Distribuidora El Sol" {
		t.Errorf("tercero = %+v", tercero)
	}
}

func TestServiceChat_InvoiceEnrichesProduct(t *testing.T) {
	classifier := &fakeClassifier{
		result: &UserIntention{Intention: IntentionCreateProduct},
		invoice: &Invoice{
			NumeroFactura: "FE-001",
			Emisor:        InvoiceIssuer{RazonSocial: "Surtidora", NIT: "800555111"},
			Items: []InvoiceItem{
				{Descripcion: "Panela x24", Cantidad: 10, Subtotal: 50000},
			},
		},
	}
	svc := newTestService(t, &fakeResponder{reply: "producto creado"}, classifier)

	img := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF})
	result, err := svc.Chat(context.Background(), &chatapi.ChatRequest{
		Message:    "registra el producto de esta factura",
		UserID:     "u1",
		MimeType:   "image/jpeg",
		FileBase64: img,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !classifier.extracted {
		t.Error("invoice extraction was not attempted for an image")
	}
	if len(result.SavedEntities) != 1 || result.SavedEntities[0] != "product" {
		t.Fatalf("saved entities = %v", result.SavedEntities)
	}

	row := svc.entities.db.QueryRow(`SELECT nombre, precio_venta, cantidad FROM productos`)
	var nombre string
	var precio float64
	var cantidad int
	if err := row.Scan(&nombre, &precio, &cantidad); err != nil {
		t.Fatalf("scan product: %v", err)
	}
	if nombre != "Panela x24" || precio != 5000 || cantidad != 10 {
		t.Errorf("product = %q %v x%d", nombre, precio, cantidad)
	}
}

func TestServiceChat_ClassifierErrorDoesNotBlockReply(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("model unavailable")}
	svc := newTestService(t, &fakeResponder{reply: "igual te respondo"}, classifier)

	result, err := svc.Chat(context.Background(), &chatapi.ChatRequest{Message: "hola", UserID: "u1"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Reply != "igual te respondo" {
		t.Errorf("reply = %q", result.Reply)
	}
	if result.Intention != IntentionNone || len(result.SavedEntities) != 0 {
		t.Errorf("result = %+v, want no intention after classifier failure", result)
	}
}

func TestServiceChat_CasualIntentionSavesNothing(t *testing.T) {
	classifier := &fakeClassifier{result: &UserIntention{Intention: IntentionOther}}
	svc := newTestService(t, &fakeResponder{reply: "todo bien"}, classifier)

	result, err := svc.Chat(context.Background(), &chatapi.ChatRequest{Message: "cómo vas", UserID: "u1"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Intention != IntentionOther {
		t.Errorf("intention = %q", result.Intention)
	}
	if len(result.SavedEntities) != 0 {
		t.Errorf("saved entities = %v, want none", result.SavedEntities)
	}

	var count int
	if err := svc.entities.db.QueryRow(`SELECT COUNT(*) FROM terceros`).Scan(&count); err != nil {
		t.Fatalf("count terceros: %v", err)
	}
	if count != 0 {
		t.Errorf("terceros stored = %d, want 0", count)
	}
}
