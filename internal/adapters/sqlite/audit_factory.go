package sqlite

import (
	"github.com/paybridge/ipn/internal/app/ports"
	"github.com/paybridge/ipn/internal/db"
)

// AuditStoreFactory opens sqlite-backed stores for audit persistence.
type AuditStoreFactory struct {
	dbPath string
	shared *db.Database
}

// NewAuditStoreFactory creates a sqlite audit store factory backed by a DB
// path. Opened stores own and close their DB handle.
func NewAuditStoreFactory(dbPath string) *AuditStoreFactory {
	return &AuditStoreFactory{dbPath: dbPath}
}

// NewSharedAuditStoreFactory creates a factory backed by an existing shared
// DB handle. Opened stores do not close the shared handle.
func NewSharedAuditStoreFactory(shared *db.Database) *AuditStoreFactory {
	return &AuditStoreFactory{shared: shared}
}

// Open creates a flush-scoped sqlite audit store.
func (f *AuditStoreFactory) Open() (ports.AuditStore, error) {
	if f.shared != nil {
		return newAuditStore(f.shared, nil), nil
	}
	database, err := db.New(f.dbPath)
	if err != nil {
		return nil, err
	}
	return newAuditStore(database, database.Close), nil
}

var _ ports.AuditStoreFactory = (*AuditStoreFactory)(nil)
