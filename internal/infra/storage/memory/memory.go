package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/storage"
)

type MemoryStorage struct {
	schemas map[string]*domain.StreamSchema
	records map[string]*domain.StreamRecord
	mu      sync.RWMutex
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		schemas: make(map[string]*domain.StreamSchema),
		records: make(map[string]*domain.StreamRecord),
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------
// Schema Repository
// -----------------------------------------------------------------------------

type SchemaRepo struct {
	store *MemoryStorage
}

func NewSchemaRepo(store *MemoryStorage) *SchemaRepo {
	return &SchemaRepo{store: store}
}

func (r *SchemaRepo) Save(ctx context.Context, schema *domain.StreamSchema) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.schemas[schema.ID]; ok {
		return nil
	}
	s := *schema
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.store.now()
	}
	r.store.schemas[s.ID] = &s
	return nil
}

func (r *SchemaRepo) Get(ctx context.Context, id string) (*domain.StreamSchema, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.schemas[id]
	if !ok {
		return nil, storage.ErrSchemaNotFound
	}
	out := *s
	return &out, nil
}

func (r *SchemaRepo) List(ctx context.Context) ([]*domain.StreamSchema, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.StreamSchema, 0, len(r.store.schemas))
	for _, s := range r.store.schemas {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// -----------------------------------------------------------------------------
// Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

func NewRecordRepo(store *MemoryStorage) *RecordRepo {
	return &RecordRepo{store: store}
}

func recordKey(schemaID, publisher, dataID string) string {
	return schemaID + "/" + publisher + "/" + dataID
}

func (r *RecordRepo) Save(ctx context.Context, record *domain.StreamRecord) error {
	return r.SaveBatch(ctx, []*domain.StreamRecord{record})
}

func (r *RecordRepo) SaveBatch(ctx context.Context, records []*domain.StreamRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := r.store.now()
	for _, rec := range records {
		c := *rec
		c.Data = append([]byte(nil), rec.Data...)
		c.UpdatedAt = now
		r.store.records[recordKey(c.SchemaID, c.Publisher, c.DataID)] = &c
	}
	return nil
}

func (r *RecordRepo) Get(ctx context.Context, schemaID, publisher, dataID string) (*domain.StreamRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[recordKey(schemaID, publisher, dataID)]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	c := *rec
	return &c, nil
}

func (r *RecordRepo) GetMany(ctx context.Context, schemaID, publisher string, dataIDs []string) ([]*domain.StreamRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.StreamRecord
	for _, id := range dataIDs {
		if rec, ok := r.store.records[recordKey(schemaID, publisher, id)]; ok {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *RecordRepo) ListByPublisher(ctx context.Context, schemaID, publisher string) ([]*domain.StreamRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.StreamRecord
	for _, rec := range r.store.records {
		if rec.SchemaID == schemaID && rec.Publisher == publisher {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].DataID < out[j].DataID
	})
	return out, nil
}
