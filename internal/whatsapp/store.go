package whatsapp

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// SessionStore owns the sqlite-backed device store for one session. Opening
// a path with no prior database yields fresh unregistered credentials.
type SessionStore struct {
	container *sqlstore.Container
	device    *store.Device
	dbPath    string
	logger    *log.Logger
}

// OpenSessionStore opens (or creates) the credential database at dbPath and
// loads the first device from it.
func OpenSessionStore(ctx context.Context, dbPath string, logger *log.Logger) (*SessionStore, error) {
	dbLog := waLog.Stdout("Database", "WARN", true)

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", dbLog)
	if err != nil {
		return nil, fmt.Errorf("database error: %v", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("device error: %v", err)
	}

	return &SessionStore{
		container: container,
		device:    device,
		dbPath:    dbPath,
		logger:    logger,
	}, nil
}

// Device returns the loaded device record.
func (s *SessionStore) Device() *store.Device {
	return s.device
}

// Save durably persists the current device credentials.
func (s *SessionStore) Save(ctx context.Context) error {
	return s.device.Save(ctx)
}

// Delete closes the database and removes its file, discarding the session
// credentials entirely.
func (s *SessionStore) Delete() error {
	if s.container != nil {
		s.container.Close()
		s.container = nil
	}
	if err := os.Remove(s.dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credential database: %v", err)
	}
	s.logger.Printf("Deleted credential database %s", s.dbPath)
	return nil
}

// Close releases the database connection without touching the file.
func (s *SessionStore) Close() {
	if s.container != nil {
		s.container.Close()
		s.container = nil
	}
}
