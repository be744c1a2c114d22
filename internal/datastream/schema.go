// Package datastream publishes and reads ABI-encoded records under
// registered schemas, scoped by publisher.
package datastream

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/gigwatch/internal/infra/storage"
)

var (
	ErrSchemaNotFound = storage.ErrSchemaNotFound
	ErrRecordNotFound = storage.ErrRecordNotFound
	ErrInvalidSchema  = errors.New("invalid schema")
	ErrInvalidValue   = errors.New("invalid value")
)

// FieldType is one of the supported ABI value types.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeUint64  FieldType = "uint64"
	TypeUint256 FieldType = "uint256"
	TypeAddress FieldType = "address"
	TypeBool    FieldType = "bool"
	TypeBytes32 FieldType = "bytes32"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeUint64, TypeUint256, TypeAddress, TypeBool, TypeBytes32:
		return true
	}
	return false
}

// Field is one named, typed column of a schema.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is an ordered list of fields.
type Schema struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSchema parses a definition such as "uint64 timestamp, string title".
func ParseSchema(name, definition string) (Schema, error) {
	s := Schema{Name: name}
	seen := map[string]bool{}
	for _, part := range strings.Split(definition, ",") {
		tokens := strings.Fields(part)
		if len(tokens) != 2 {
			return Schema{}, fmt.Errorf("%w: field %q", ErrInvalidSchema, strings.TrimSpace(part))
		}
		f := Field{Type: FieldType(tokens[0]), Name: tokens[1]}
		if !f.Type.valid() {
			return Schema{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidSchema, tokens[0])
		}
		if !fieldName.MatchString(f.Name) || seen[f.Name] {
			return Schema{}, fmt.Errorf("%w: bad or duplicate field name %q", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = true
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

// Canonical returns the normalized definition the schema id is derived from.
func (s Schema) Canonical() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = string(f.Type) + " " + f.Name
	}
	return strings.Join(parts, ", ")
}

// ID is keccak256 of the canonical definition.
func (s Schema) ID() common.Hash {
	return crypto.Keccak256Hash([]byte(s.Canonical()))
}

func (s Schema) arguments() (abi.Arguments, error) {
	args := make(abi.Arguments, len(s.Fields))
	for i, f := range s.Fields {
		typ, err := abi.NewType(string(f.Type), "", nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		args[i] = abi.Argument{Name: f.Name, Type: typ}
	}
	return args, nil
}

// DataID normalizes a record key to bytes32 hex. 32-byte hex input is kept,
// anything else is hashed.
func DataID(key string) string {
	if b, err := hexBytes32(key); err == nil {
		return common.Hash(b).Hex()
	}
	return crypto.Keccak256Hash([]byte(key)).Hex()
}

// JobRecordSchema is the built-in schema for off-chain job metadata.
var JobRecordSchema = Schema{
	Name: "gigwatch.job",
	Fields: []Field{
		{Name: "jobId", Type: TypeUint64},
		{Name: "title", Type: TypeString},
		{Name: "description", Type: TypeString},
		{Name: "location", Type: TypeString},
		{Name: "reward", Type: TypeUint256},
		{Name: "deadline", Type: TypeUint64},
		{Name: "employer", Type: TypeAddress},
	},
}
