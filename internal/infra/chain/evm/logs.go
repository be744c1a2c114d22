package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// parseLog converts one JSON-RPC log object into a RawLog without decoding args.
func parseLog(raw map[string]any) (domain.RawLog, error) {
	blockNumber, err := parseHexString(getString(raw["blockNumber"]))
	if err != nil {
		return domain.RawLog{}, fmt.Errorf("log blockNumber: %w", err)
	}
	logIndex, _ := parseHexString(getString(raw["logIndex"]))

	var data []byte
	if d := getString(raw["data"]); d != "" && d != "0x" {
		data, err = hexutil.Decode(d)
		if err != nil {
			return domain.RawLog{}, fmt.Errorf("log data: %w", err)
		}
	}

	var topics []string
	if rawTopics, ok := raw["topics"].([]any); ok {
		topics = make([]string, 0, len(rawTopics))
		for _, t := range rawTopics {
			topics = append(topics, strings.ToLower(getString(t)))
		}
	}

	removed, _ := raw["removed"].(bool)

	return domain.RawLog{
		Address:     strings.ToLower(getString(raw["address"])),
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   getString(raw["blockHash"]),
		TxHash:      getString(raw["transactionHash"]),
		LogIndex:    logIndex,
		Removed:     removed,
	}, nil
}

func parseHexString(hexStr string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return 0, fmt.Errorf("invalid hex: %q", hexStr)
	}
	return n.Uint64(), nil
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toHex(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}
