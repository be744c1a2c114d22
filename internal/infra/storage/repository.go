package storage

import (
	"context"
	"errors"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

var (
	// ErrSchemaNotFound is returned when a schema id is not registered
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrRecordNotFound is returned when no record exists for a key
	ErrRecordNotFound = errors.New("record not found")
)

// SchemaRepository handles data stream schema storage
type SchemaRepository interface {
	// Save registers a schema. Saving an existing id is a no-op.
	Save(ctx context.Context, schema *domain.StreamSchema) error

	// Get retrieves a schema by id
	Get(ctx context.Context, id string) (*domain.StreamSchema, error)

	// List returns every registered schema
	List(ctx context.Context) ([]*domain.StreamSchema, error)
}

// RecordRepository handles publisher-scoped record storage
type RecordRepository interface {
	// Save inserts or replaces a record
	Save(ctx context.Context, record *domain.StreamRecord) error

	// SaveBatch inserts or replaces records atomically
	SaveBatch(ctx context.Context, records []*domain.StreamRecord) error

	// Get retrieves one record
	Get(ctx context.Context, schemaID, publisher, dataID string) (*domain.StreamRecord, error)

	// GetMany retrieves the records among dataIDs that exist
	GetMany(ctx context.Context, schemaID, publisher string, dataIDs []string) ([]*domain.StreamRecord, error)

	// ListByPublisher returns a publisher's records, most recently updated first
	ListByPublisher(ctx context.Context, schemaID, publisher string) ([]*domain.StreamRecord, error)
}
