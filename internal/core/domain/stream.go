package domain

import "time"

// StreamSchema is a registered record layout. ID is the keccak256 hash
// of Definition, hex encoded.
type StreamSchema struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Definition string    `json:"definition" db:"definition"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// StreamRecord is one ABI-encoded record published under a schema.
type StreamRecord struct {
	SchemaID  string    `json:"schema_id" db:"schema_id"`
	Publisher string    `json:"publisher" db:"publisher"`
	DataID    string    `json:"data_id" db:"data_id"`
	Data      []byte    `json:"data" db:"data"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
