package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Media is an optional attachment forwarded alongside a message.
type Media struct {
	MimeType string
	Data     []byte
}

// Responder produces a reply for a user message given prior conversation
// turns.
type Responder interface {
	Respond(ctx context.Context, history []Message, message string, media *Media) (string, error)
	Close()
}

// GeminiResponder answers with Google's Gemini models. It also implements
// Classifier using the same client in JSON-schema output mode.
type GeminiResponder struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGeminiResponder creates a Gemini-backed responder.
func NewGeminiResponder(ctx context.Context, apiKey, modelName string) (*GeminiResponder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopP(0.9)
	model.SetTopK(40)

	return &GeminiResponder{client: client, model: model, modelName: modelName}, nil
}

func (g *GeminiResponder) Respond(ctx context.Context, history []Message, message string, media *Media) (string, error) {
	var prompt strings.Builder
	prompt.WriteString(systemPrompt)
	prompt.WriteString("\n\n--- Conversación ---\n\n")
	for _, msg := range history {
		prompt.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	prompt.WriteString(fmt.Sprintf("user: %s\n", message))
	prompt.WriteString("assistant: ")

	parts := []genai.Part{genai.Text(prompt.String())}
	if media != nil {
		parts = append(parts, genai.Blob{MIMEType: media.MimeType, Data: media.Data})
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return firstPart(resp)
}

func firstPart(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}
	return fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), nil
}

func (g *GeminiResponder) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

const systemPrompt = `Eres Don Confiado, el asistente virtual de confianza para microempresarios y tenderos.

PERSONALIDAD:
- Amigable, cercano y profesional
- Breve y directo (máximo 3 líneas)
- Tutea al usuario

OBJETIVO:
- Ayudar con las cuentas del negocio: ventas, gastos, inventario y clientes
- Responder preguntas sobre facturas y documentos que el usuario envíe
- Dar consejos prácticos para el manejo del negocio

REGLAS:
1. Responde siempre en máximo 3 líneas
2. Si el usuario envía una imagen o documento, descríbelo y extrae los datos útiles
3. Si no sabes algo, dilo con honestidad
4. Sé conversacional, no uses bullet points`
