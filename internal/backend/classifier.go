package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// Classifier detects the user's intention and extracts structured data from
// messages and attached invoices.
type Classifier interface {
	Classify(ctx context.Context, history []Message, message string, media *Media) (*UserIntention, error)
	ExtractInvoice(ctx context.Context, media *Media) (*Invoice, error)
}

var intentionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"userintention": {
			Type: genai.TypeString,
			Enum: []string{
				string(IntentionCreateProvider),
				string(IntentionCreateClient),
				string(IntentionCreateProduct),
				string(IntentionOther),
				string(IntentionNone),
				string(IntentionBye),
			},
		},
		"payload_provider": {
			Type:     genai.TypeObject,
			Nullable: true,
			Properties: map[string]*genai.Schema{
				"nombre":    {Type: genai.TypeString, Description: "Nombre o razón social del proveedor"},
				"nit":       {Type: genai.TypeString, Description: "NIT del proveedor"},
				"direccion": {Type: genai.TypeString, Nullable: true},
				"telefono":  {Type: genai.TypeString, Nullable: true},
			},
		},
		"payload_client": {
			Type:     genai.TypeObject,
			Nullable: true,
			Properties: map[string]*genai.Schema{
				"nombre":    {Type: genai.TypeString, Description: "Nombre completo o razón social del cliente"},
				"nit":       {Type: genai.TypeString, Description: "NIT o documento de identidad del cliente"},
				"direccion": {Type: genai.TypeString, Nullable: true},
			},
		},
		"payload_product": {
			Type:     genai.TypeObject,
			Nullable: true,
			Properties: map[string]*genai.Schema{
				"nombre":       {Type: genai.TypeString, Description: "Nombre del producto"},
				"precio_venta": {Type: genai.TypeNumber, Description: "Precio de venta"},
				"cantidad":     {Type: genai.TypeInteger, Description: "Cantidad disponible"},
				"sku":          {Type: genai.TypeString, Nullable: true},
				"proveedor":    {Type: genai.TypeString, Nullable: true, Description: "Nombre o NIT del proveedor"},
			},
		},
	},
	Required: []string{"userintention"},
}

var invoiceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"numeroFactura": {Type: genai.TypeString, Description: "Número único de la factura"},
		"fechaEmision":  {Type: genai.TypeString, Description: "Fecha de emisión en formato YYYY-MM-DD"},
		"moneda":        {Type: genai.TypeString, Description: "Código de moneda ISO 4217, por defecto COP"},
		"total":         {Type: genai.TypeNumber, Description: "Valor total de la factura"},
		"emisor": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"razonSocial": {Type: genai.TypeString, Description: "Razón social del emisor"},
				"nit":         {Type: genai.TypeString, Description: "NIT del emisor, sin dígito de verificación"},
			},
			Required: []string{"razonSocial", "nit"},
		},
		"items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"descripcion":    {Type: genai.TypeString},
					"cantidad":       {Type: genai.TypeNumber},
					"precioUnitario": {Type: genai.TypeNumber, Nullable: true},
					"subtotal":       {Type: genai.TypeNumber, Nullable: true},
				},
				Required: []string{"descripcion", "cantidad"},
			},
		},
	},
	Required: []string{"numeroFactura", "emisor"},
}

// Classify detects the intention behind one message, using the conversation
// history for context and the attachment when one is present.
func (g *GeminiResponder) Classify(ctx context.Context, history []Message, message string, media *Media) (*UserIntention, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = intentionSchema

	parts := []genai.Part{genai.Text(classifyInstruction(history, message, media))}
	if media != nil {
		parts = append(parts, genai.Blob{MIMEType: media.MimeType, Data: media.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("classify intention: %w", err)
	}
	raw, err := firstPart(resp)
	if err != nil {
		return nil, err
	}

	var result UserIntention
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode intention: %w", err)
	}
	return &result, nil
}

// ExtractInvoice reads structured invoice data out of an attached image.
func (g *GeminiResponder) ExtractInvoice(ctx context.Context, media *Media) (*Invoice, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceSchema

	resp, err := model.GenerateContent(ctx,
		genai.Text("Analiza la imagen y extrae los datos de la factura según el esquema. Si la imagen no contiene una factura, deja los campos vacíos."),
		genai.Blob{MIMEType: media.MimeType, Data: media.Data},
	)
	if err != nil {
		return nil, fmt.Errorf("extract invoice: %w", err)
	}
	raw, err := firstPart(resp)
	if err != nil {
		return nil, err
	}

	var invoice Invoice
	if err := json.Unmarshal([]byte(raw), &invoice); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	if invoice.NumeroFactura == "" && invoice.Emisor.NIT == "" {
		return nil, nil
	}
	return &invoice, nil
}

func classifyInstruction(history []Message, message string, media *Media) string {
	var b strings.Builder
	b.WriteString("Eres un asistente para gestión comercial.\n")
	b.WriteString("Clasifica la intención del usuario y extrae los datos mencionados según el esquema.\n")
	b.WriteString("Intenciones disponibles: create_provider, create_client, create_product, other, none, bye.\n")
	b.WriteString("- 'create_provider': cuando el usuario quiere crear un proveedor (puede venir de texto, audio o factura)\n")
	b.WriteString("- 'create_client': cuando el usuario quiere crear un cliente\n")
	b.WriteString("- 'create_product': cuando el usuario quiere crear un producto (puede venir de texto, audio o factura)\n")
	b.WriteString("- 'other': conversación casual u otro propósito\n")
	b.WriteString("- 'none': sin intención clara\n")
	b.WriteString("- 'bye': despedida\n")

	if media != nil {
		switch {
		case strings.HasPrefix(media.MimeType, "image/"):
			b.WriteString("\nNOTA: El usuario adjuntó una imagen (posiblemente una factura).\n")
		case strings.HasPrefix(media.MimeType, "audio/"):
			b.WriteString("\nNOTA: El usuario envió un mensaje de audio. Escúchalo y clasifica la intención.\n")
		}
	}

	b.WriteString("\nHistorial:\n")
	for _, msg := range history {
		b.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	b.WriteString(fmt.Sprintf("\nÚltimo mensaje del usuario: %s\n", message))
	return b.String()
}
