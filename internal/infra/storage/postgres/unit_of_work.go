package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/indexing/metrics"
)

// UnitOfWork bundles persistence operations into a single database transaction.
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// SaveRecords upserts records with a single multi-row INSERT.
func (u *UnitOfWork) SaveRecords(ctx context.Context, records []*domain.StreamRecord) error {
	if len(records) == 0 {
		return nil
	}

	schemaIDs := make([]string, len(records))
	publishers := make([]string, len(records))
	dataIDs := make([]string, len(records))
	data := make([][]byte, len(records))

	for i, rec := range records {
		schemaIDs[i] = rec.SchemaID
		publishers[i] = rec.Publisher
		dataIDs[i] = rec.DataID
		data[i] = rec.Data
	}

	metrics.DBBatchSize.WithLabelValues("save_records").Observe(float64(len(records)))

	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO stream_records (schema_id, publisher, data_id, data, updated_at)
		SELECT s, p, d, b, now()
		FROM unnest($1::text[], $2::text[], $3::text[], $4::bytea[]) AS t(s, p, d, b)
		ON CONFLICT (schema_id, publisher, data_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		pq.Array(schemaIDs), pq.Array(publishers), pq.Array(dataIDs), pq.Array(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}
