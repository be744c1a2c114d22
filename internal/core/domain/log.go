package domain

// RawLog is a contract log as returned by the chain, with its ABI arguments decoded.
// Args may be nil or partial when decoding failed.
type RawLog struct {
	Address     string
	Topics      []string
	Data        []byte
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	LogIndex    uint64
	Removed     bool
	Args        map[string]any
}
