package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/storage"
)

// RecordRepo implements storage.RecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

const recordColumns = `schema_id, publisher, data_id, data, updated_at`

// Save inserts or replaces a single record.
func (r *RecordRepo) Save(ctx context.Context, record *domain.StreamRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stream_records (schema_id, publisher, data_id, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (schema_id, publisher, data_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		record.SchemaID, record.Publisher, record.DataID, record.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// SaveBatch writes records in one transaction.
func (r *RecordRepo) SaveBatch(ctx context.Context, records []*domain.StreamRecord) error {
	uow, err := r.db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.SaveRecords(ctx, records); err != nil {
		return err
	}
	return uow.Commit()
}

// Get retrieves one record.
func (r *RecordRepo) Get(ctx context.Context, schemaID, publisher, dataID string) (*domain.StreamRecord, error) {
	var rec domain.StreamRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT `+recordColumns+` FROM stream_records
		WHERE schema_id = $1 AND publisher = $2 AND data_id = $3`,
		schemaID, publisher, dataID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// GetMany retrieves the existing records among dataIDs.
func (r *RecordRepo) GetMany(ctx context.Context, schemaID, publisher string, dataIDs []string) ([]*domain.StreamRecord, error) {
	if len(dataIDs) == 0 {
		return nil, nil
	}
	var out []*domain.StreamRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+recordColumns+` FROM stream_records
		WHERE schema_id = $1 AND publisher = $2 AND data_id = ANY($3::text[])`,
		schemaID, publisher, pq.Array(dataIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return out, nil
}

// ListByPublisher returns a publisher's records, newest first.
func (r *RecordRepo) ListByPublisher(ctx context.Context, schemaID, publisher string) ([]*domain.StreamRecord, error) {
	var out []*domain.StreamRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+recordColumns+` FROM stream_records
		WHERE schema_id = $1 AND publisher = $2
		ORDER BY updated_at DESC, data_id`,
		schemaID, publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}
