package datastream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/storage"
)

// Record is a stored record with its values decoded.
type Record struct {
	SchemaID  string         `json:"schemaId"`
	Publisher string         `json:"publisher"`
	DataID    string         `json:"dataId"`
	Values    map[string]any `json:"values"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Entry is one record of a batch publish.
type Entry struct {
	DataID string
	Values map[string]any
}

// Service registers schemas and publishes and reads records.
type Service struct {
	schemas storage.SchemaRepository
	records storage.RecordRepository
	log     *slog.Logger
}

// NewService creates a service over the given repositories.
func NewService(schemas storage.SchemaRepository, records storage.RecordRepository) *Service {
	return &Service{
		schemas: schemas,
		records: records,
		log:     slog.Default().With("component", "datastream"),
	}
}

// Register stores s and returns its id. Registering the same definition
// twice returns the same id.
func (s *Service) Register(ctx context.Context, schema Schema) (string, error) {
	if len(schema.Fields) == 0 {
		return "", fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}
	if _, err := schema.arguments(); err != nil {
		return "", err
	}
	id := schema.ID().Hex()
	if err := s.schemas.Save(ctx, &domain.StreamSchema{
		ID:         id,
		Name:       schema.Name,
		Definition: schema.Canonical(),
	}); err != nil {
		return "", err
	}
	s.log.Debug("schema registered", "name", schema.Name, "id", id)
	return id, nil
}

// Schema loads a registered schema.
func (s *Service) Schema(ctx context.Context, schemaID string) (Schema, error) {
	stored, err := s.schemas.Get(ctx, normalizeHash(schemaID))
	if err != nil {
		return Schema{}, err
	}
	return ParseSchema(stored.Name, stored.Definition)
}

// Schemas lists every registered schema.
func (s *Service) Schemas(ctx context.Context) ([]*domain.StreamSchema, error) {
	return s.schemas.List(ctx)
}

// Publish encodes values under the schema and stores them at
// (schemaID, publisher, dataID), replacing any previous record.
func (s *Service) Publish(ctx context.Context, publisher, schemaID, dataID string, values map[string]any) (string, error) {
	ids, err := s.PublishBatch(ctx, publisher, schemaID, []Entry{{DataID: dataID, Values: values}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// PublishBatch publishes entries atomically.
func (s *Service) PublishBatch(ctx context.Context, publisher, schemaID string, entries []Entry) ([]string, error) {
	publisher, err := normalizePublisher(publisher)
	if err != nil {
		return nil, err
	}
	schemaID = normalizeHash(schemaID)
	schema, err := s.Schema(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.StreamRecord, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		data, err := Encode(schema, e.Values)
		if err != nil {
			return nil, err
		}
		ids[i] = DataID(e.DataID)
		records[i] = &domain.StreamRecord{
			SchemaID:  schemaID,
			Publisher: publisher,
			DataID:    ids[i],
			Data:      data,
		}
	}
	if err := s.records.SaveBatch(ctx, records); err != nil {
		return nil, err
	}
	return ids, nil
}

// Read returns one decoded record.
func (s *Service) Read(ctx context.Context, schemaID, publisher, dataID string) (*Record, error) {
	publisher, err := normalizePublisher(publisher)
	if err != nil {
		return nil, err
	}
	schemaID = normalizeHash(schemaID)
	schema, err := s.Schema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, schemaID, publisher, DataID(dataID))
	if err != nil {
		return nil, err
	}
	return decodeRecord(schema, rec)
}

// ReadAll returns every record a publisher stored under a schema,
// most recently updated first.
func (s *Service) ReadAll(ctx context.Context, schemaID, publisher string) ([]*Record, error) {
	publisher, err := normalizePublisher(publisher)
	if err != nil {
		return nil, err
	}
	schemaID = normalizeHash(schemaID)
	schema, err := s.Schema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	stored, err := s.records.ListByPublisher(ctx, schemaID, publisher)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(stored))
	for _, rec := range stored {
		r, err := decodeRecord(schema, rec)
		if err != nil {
			s.log.Warn("skipping undecodable record", "schema", schemaID, "data_id", rec.DataID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeRecord(schema Schema, rec *domain.StreamRecord) (*Record, error) {
	values, err := Decode(schema, rec.Data)
	if err != nil {
		return nil, err
	}
	return &Record{
		SchemaID:  rec.SchemaID,
		Publisher: rec.Publisher,
		DataID:    rec.DataID,
		Values:    values,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func normalizePublisher(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: publisher %q is not an address", ErrInvalidValue, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

func normalizeHash(id string) string {
	return strings.ToLower(id)
}
