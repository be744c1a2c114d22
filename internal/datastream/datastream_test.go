package datastream

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/gigwatch/internal/infra/storage/memory"
)

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema("post", "  uint64   timestamp,string title ,address author")
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}
	if got := s.Canonical(); got != "uint64 timestamp, string title, address author" {
		t.Errorf("unexpected canonical form %q", got)
	}
	if s.ID() != crypto.Keccak256Hash([]byte(s.Canonical())) {
		t.Error("schema id should be keccak256 of the canonical definition")
	}

	bad := []string{"", "uint64", "int8 x", "string a, string a", "string 1abc"}
	for _, def := range bad {
		if _, err := ParseSchema("x", def); !errors.Is(err, ErrInvalidSchema) {
			t.Errorf("%q: expected ErrInvalidSchema, got %v", def, err)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	reward, _ := new(big.Int).SetString("1000000000000000000000", 10)
	values := map[string]any{
		"jobId":       json.Number("42"),
		"title":       "Move sofa",
		"description": "Third floor, no lift",
		"location":    "Da Nang",
		"reward":      "1000000000000000000000",
		"deadline":    float64(1735689600),
		"employer":    "0x00000000000000000000000000000000000000AB",
	}

	data, err := Encode(JobRecordSchema, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(JobRecordSchema, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got["jobId"] != uint64(42) || got["deadline"] != uint64(1735689600) {
		t.Errorf("unexpected integers %v %v", got["jobId"], got["deadline"])
	}
	if r, ok := got["reward"].(*big.Int); !ok || r.Cmp(reward) != 0 {
		t.Errorf("unexpected reward %v", got["reward"])
	}
	if !strings.EqualFold(got["employer"].(string), "0x00000000000000000000000000000000000000ab") {
		t.Errorf("unexpected employer %v", got["employer"])
	}
	if got["title"] != "Move sofa" {
		t.Errorf("unexpected title %v", got["title"])
	}
}

func TestEncodeRejectsBadValues(t *testing.T) {
	s, _ := ParseSchema("t", "uint64 n, address a, bytes32 h, bool ok")
	base := func() map[string]any {
		return map[string]any{"n": 1, "a": "0x00000000000000000000000000000000000000ab", "h": DataID("x"), "ok": true}
	}
	if _, err := Encode(s, base()); err != nil {
		t.Fatalf("valid values rejected: %v", err)
	}

	tests := map[string]func(map[string]any){
		"missing":      func(m map[string]any) { delete(m, "n") },
		"negative":     func(m map[string]any) { m["n"] = -1 },
		"fraction":     func(m map[string]any) { m["n"] = 1.5 },
		"bad address":  func(m map[string]any) { m["a"] = "0x123" },
		"short hash":   func(m map[string]any) { m["h"] = "0x1234" },
		"bool as text": func(m map[string]any) { m["ok"] = "true" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			v := base()
			mutate(v)
			if _, err := Encode(s, v); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestDataID(t *testing.T) {
	h := "0x" + strings.Repeat("ab", 32)
	if DataID(h) != h {
		t.Errorf("32-byte hex should be kept, got %s", DataID(h))
	}
	if DataID("job-1") != crypto.Keccak256Hash([]byte("job-1")).Hex() {
		t.Error("other keys should be hashed")
	}
}

func newTestService() *Service {
	store := memory.NewMemoryStorage()
	return NewService(memory.NewSchemaRepo(store), memory.NewRecordRepo(store))
}

func TestService_PublishAndRead(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, err := svc.Register(ctx, JobRecordSchema)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	again, _ := svc.Register(ctx, JobRecordSchema)
	if again != id {
		t.Errorf("re-registering changed the id: %s != %s", again, id)
	}

	publisher := "0x00000000000000000000000000000000000000Ee"
	job := func(n int, title string) map[string]any {
		return map[string]any{
			"jobId": n, "title": title, "description": "", "location": "Hue",
			"reward": 5, "deadline": 0, "employer": publisher,
		}
	}

	dataID, err := svc.Publish(ctx, publisher, id, "job-1", job(1, "first"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := svc.Publish(ctx, publisher, id, "job-1", job(1, "edited")); err != nil {
		t.Fatalf("Publish overwrite: %v", err)
	}
	if _, err := svc.PublishBatch(ctx, publisher, id, []Entry{{DataID: "job-2", Values: job(2, "second")}}); err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}

	rec, err := svc.Read(ctx, "0x"+strings.ToUpper(id[2:]), strings.ToLower(publisher), "job-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.DataID != dataID || rec.Values["title"] != "edited" {
		t.Errorf("unexpected record %+v", rec)
	}

	all, err := svc.ReadAll(ctx, id, publisher)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 records, got %d", len(all))
	}
}

func TestService_Errors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	publisher := "0x00000000000000000000000000000000000000ee"

	if _, err := svc.Publish(ctx, publisher, JobRecordSchema.ID().Hex(), "x", nil); !errors.Is(err, ErrSchemaNotFound) {
		t.Errorf("expected ErrSchemaNotFound, got %v", err)
	}

	id, _ := svc.Register(ctx, JobRecordSchema)
	if _, err := svc.Read(ctx, id, publisher, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := svc.Read(ctx, id, "not-an-address", "x"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := svc.Publish(ctx, publisher, id, "x", map[string]any{"title": "only"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
	if _, err := svc.Register(ctx, Schema{Name: "empty"}); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}
