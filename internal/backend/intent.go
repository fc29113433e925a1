package backend

// Intention is the classified purpose of a user message.
type Intention string

const (
	IntentionCreateProvider Intention = "create_provider"
	IntentionCreateClient   Intention = "create_client"
	IntentionCreateProduct  Intention = "create_product"
	IntentionOther          Intention = "other"
	IntentionNone           Intention = "none"
	IntentionBye            Intention = "bye"
)

// ProviderPayload carries the data needed to register a provider. Field
// names stay in the business vocabulary the model extracts against.
type ProviderPayload struct {
	Nombre    string `json:"nombre"`
	NIT       string `json:"nit"`
	Direccion string `json:"direccion,omitempty"`
	Telefono  string `json:"telefono,omitempty"`
}

// ClientPayload carries the data needed to register a client.
type ClientPayload struct {
	Nombre    string `json:"nombre"`
	NIT       string `json:"nit"`
	Direccion string `json:"direccion,omitempty"`
}

// ProductPayload carries the data needed to register a product.
type ProductPayload struct {
	Nombre      string  `json:"nombre"`
	PrecioVenta float64 `json:"precio_venta"`
	Cantidad    int     `json:"cantidad"`
	SKU         string  `json:"sku,omitempty"`
	Proveedor   string  `json:"proveedor,omitempty"` // name or NIT of the provider
}

// UserIntention is the structured classification result: the intention plus
// whatever entity data the model extracted from text, audio or an invoice.
type UserIntention struct {
	Intention Intention        `json:"userintention"`
	Provider  *ProviderPayload `json:"payload_provider,omitempty"`
	Client    *ClientPayload   `json:"payload_client,omitempty"`
	Product   *ProductPayload  `json:"payload_product,omitempty"`
}

// InvoiceIssuer identifies who emitted an invoice.
type InvoiceIssuer struct {
	RazonSocial string `json:"razonSocial"`
	NIT         string `json:"nit"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	Descripcion    string  `json:"descripcion"`
	Cantidad       float64 `json:"cantidad"`
	PrecioUnitario float64 `json:"precioUnitario,omitempty"`
	Subtotal       float64 `json:"subtotal,omitempty"`
}

// Invoice is the structured extraction of a standard Colombian invoice.
type Invoice struct {
	NumeroFactura string        `json:"numeroFactura"`
	FechaEmision  string        `json:"fechaEmision"`
	Moneda        string        `json:"moneda"`
	Total         float64       `json:"total"`
	Emisor        InvoiceIssuer `json:"emisor"`
	Items         []InvoiceItem `json:"items"`
}

const maxProductNameLen = 200

// enrichIntention fills the intention payloads from extracted invoice data:
// the issuer becomes the provider, the first line item becomes the product.
func enrichIntention(result *UserIntention, invoice *Invoice) *UserIntention {
	if result == nil || invoice == nil {
		return result
	}

	switch result.Intention {
	case IntentionCreateProvider:
		result.Provider = &ProviderPayload{
			Nombre: invoice.Emisor.RazonSocial,
			NIT:    invoice.Emisor.NIT,
		}

	case IntentionCreateProduct:
		if len(invoice.Items) == 0 {
			return result
		}
		item := invoice.Items[0]

		precio := item.PrecioUnitario
		if precio == 0 && item.Subtotal > 0 && item.Cantidad > 0 {
			precio = item.Subtotal / item.Cantidad
		}

		nombre := item.Descripcion
		if len(nombre) > maxProductNameLen {
			nombre = nombre[:maxProductNameLen]
		}

		result.Product = &ProductPayload{
			Nombre:      nombre,
			PrecioVenta: precio,
			Cantidad:    int(item.Cantidad),
			Proveedor:   invoice.Emisor.NIT,
		}
	}

	return result
}
