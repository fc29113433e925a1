package backend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Tercero is a registered business contact: a provider or a client.
type Tercero struct {
	ID              int64
	TipoDocumento   string // CC, NIT or CE
	NumeroDocumento string
	RazonSocial     string
	Telefono        string
	Direccion       string
	TipoTercero     string // proveedor or cliente
}

// Producto is a registered product, optionally linked to its provider.
type Producto struct {
	ID          int64
	SKU         string
	Nombre      string
	PrecioVenta float64
	Cantidad    int
	ProveedorID sql.NullInt64
}

// EntityStore persists the business entities created from detected
// intentions.
type EntityStore struct {
	db *sql.DB
}

// NewEntityStore opens (or creates) the entity database at path.
func NewEntityStore(path string) (*EntityStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS terceros (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tipo_documento TEXT NOT NULL,
		numero_documento TEXT NOT NULL,
		razon_social TEXT,
		telefono TEXT,
		direccion TEXT,
		tipo_tercero TEXT NOT NULL CHECK (tipo_tercero IN ('cliente', 'proveedor')),
		fecha_creacion TIMESTAMP,
		UNIQUE (tipo_documento, numero_documento)
	);
	CREATE TABLE IF NOT EXISTS productos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		nombre TEXT NOT NULL,
		precio_venta REAL NOT NULL CHECK (precio_venta >= 0),
		cantidad INTEGER NOT NULL DEFAULT 0 CHECK (cantidad >= 0),
		proveedor_id INTEGER,
		fecha_creacion TIMESTAMP,
		FOREIGN KEY (proveedor_id) REFERENCES terceros (id)
	);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &EntityStore{db: db}, nil
}

// SaveTercero registers a provider or client from an extracted payload.
func (s *EntityStore) SaveTercero(nombre, nit, telefono, direccion, tipoTercero string) (*Tercero, error) {
	if nit == "" {
		return nil, fmt.Errorf("missing document number for %s %q", tipoTercero, nombre)
	}

	t := &Tercero{
		TipoDocumento:   "NIT",
		NumeroDocumento: nit,
		RazonSocial:     nombre,
		Telefono:        telefono,
		Direccion:       direccion,
		TipoTercero:     tipoTercero,
	}

	res, err := s.db.Exec(`
		INSERT INTO terceros (tipo_documento, numero_documento, razon_social, telefono, direccion, tipo_tercero, fecha_creacion)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.TipoDocumento, t.NumeroDocumento, t.RazonSocial, t.Telefono, t.Direccion, t.TipoTercero, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", tipoTercero, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindTerceroByDocumento looks a contact up by its document number.
func (s *EntityStore) FindTerceroByDocumento(numeroDocumento string) (*Tercero, error) {
	row := s.db.QueryRow(`
		SELECT id, tipo_documento, numero_documento, razon_social, telefono, direccion, tipo_tercero
		FROM terceros
		WHERE numero_documento = ?`, numeroDocumento)

	var t Tercero
	var razonSocial, telefono, direccion sql.NullString
	err := row.Scan(&t.ID, &t.TipoDocumento, &t.NumeroDocumento, &razonSocial, &telefono, &direccion, &t.TipoTercero)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.RazonSocial = razonSocial.String
	t.Telefono = telefono.String
	t.Direccion = direccion.String
	return &t, nil
}

// SaveProducto registers a product. A missing SKU is generated from the
// name; a provider reference (name or NIT) is resolved when it matches a
// stored contact and dropped otherwise.
func (s *EntityStore) SaveProducto(p *ProductPayload) (*Producto, error) {
	if p.Nombre == "" {
		return nil, fmt.Errorf("missing product name")
	}

	sku := p.SKU
	if sku == "" {
		base := strings.ToUpper(strings.ReplaceAll(p.Nombre, " ", "_"))
		if len(base) > 20 {
			base = base[:20]
		}
		sku = fmt.Sprintf("%s_%s", base, time.Now().Format("20060102150405"))
	}

	var proveedorID sql.NullInt64
	if p.Proveedor != "" {
		proveedor, err := s.FindTerceroByDocumento(p.Proveedor)
		if err != nil {
			return nil, err
		}
		if proveedor != nil {
			proveedorID = sql.NullInt64{Int64: proveedor.ID, Valid: true}
		}
	}

	prod := &Producto{
		SKU:         sku,
		Nombre:      p.Nombre,
		PrecioVenta: p.PrecioVenta,
		Cantidad:    p.Cantidad,
		ProveedorID: proveedorID,
	}

	res, err := s.db.Exec(`
		INSERT INTO productos (sku, nombre, precio_venta, cantidad, proveedor_id, fecha_creacion)
		VALUES (?, ?, ?, ?, ?, ?)`,
		prod.SKU, prod.Nombre, prod.PrecioVenta, prod.Cantidad, prod.ProveedorID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}
	prod.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return prod, nil
}

func (s *EntityStore) Close() error {
	return s.db.Close()
}
