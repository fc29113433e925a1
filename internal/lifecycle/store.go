package lifecycle

import "context"

// CredentialStore persists session key material across restarts. Load
// happens when the Conn is constructed; the manager only drives Save and
// Delete. A missing store yields fresh unregistered credentials, not an
// error.
type CredentialStore interface {
	// Save durably persists the current credentials. Called synchronously
	// on every rotation event before the next event is consumed.
	Save(ctx context.Context) error

	// Delete discards the stored credentials. Called on terminal logout
	// and on QR-attempt exhaustion.
	Delete() error
}
