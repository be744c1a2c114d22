package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/storage"
)

// SchemaRepo implements storage.SchemaRepository using PostgreSQL.
type SchemaRepo struct {
	db *DB
}

// NewSchemaRepo creates a new PostgreSQL schema repository.
func NewSchemaRepo(db *DB) *SchemaRepo {
	return &SchemaRepo{db: db}
}

// Save registers a schema; an existing id is left untouched.
func (r *SchemaRepo) Save(ctx context.Context, schema *domain.StreamSchema) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stream_schemas (id, name, definition)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		schema.ID, schema.Name, schema.Definition,
	)
	if err != nil {
		return fmt.Errorf("failed to save schema: %w", err)
	}
	return nil
}

// Get retrieves a schema by id.
func (r *SchemaRepo) Get(ctx context.Context, id string) (*domain.StreamSchema, error) {
	var s domain.StreamSchema
	err := r.db.GetContext(ctx, &s, `
		SELECT id, name, definition, created_at
		FROM stream_schemas WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSchemaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return &s, nil
}

// List returns every schema ordered by name.
func (r *SchemaRepo) List(ctx context.Context) ([]*domain.StreamSchema, error) {
	var out []*domain.StreamSchema
	if err := r.db.SelectContext(ctx, &out, `
		SELECT id, name, definition, created_at
		FROM stream_schemas ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	return out, nil
}
