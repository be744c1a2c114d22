// Package normalize turns decoded contract logs into domain events.
package normalize

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

var (
	// ErrMissingTxHash means the log violates the chain data contract.
	ErrMissingTxHash = errors.New("log has no transaction hash")
	// ErrRemovedLog is returned for logs dropped by a reorg.
	ErrRemovedLog = errors.New("log was removed by reorg")
)

// Normalize converts one raw log of the given kind into a DomainEvent.
//
// currentBlock is the chain head when the log was fetched; 0 marks a live log.
// Historical logs get an approximate observedAt of
// now - (currentBlock - block) * avgBlockTime, clamped at zero.
// Arguments missing from raw.Args decode to zero values.
func Normalize(kind domain.Kind, raw domain.RawLog, currentBlock uint64, avgBlockTime time.Duration, now time.Time) (domain.DomainEvent, error) {
	if !kind.Valid() {
		return domain.DomainEvent{}, fmt.Errorf("normalize %q: %w", kind, domain.ErrUnknownKind)
	}
	if raw.TxHash == "" {
		return domain.DomainEvent{}, fmt.Errorf("normalize %s at block %d: %w", kind, raw.BlockNumber, ErrMissingTxHash)
	}
	if raw.Removed {
		return domain.DomainEvent{}, fmt.Errorf("normalize %s %s: %w", kind, raw.TxHash, ErrRemovedLog)
	}

	source := domain.SourceLive
	if currentBlock > raw.BlockNumber {
		source = domain.SourceHistorical
	}

	return domain.DomainEvent{
		Kind:            kind,
		TransactionHash: raw.TxHash,
		BlockNumber:     raw.BlockNumber,
		LogIndex:        raw.LogIndex,
		ObservedAt:      ObservedAt(raw.BlockNumber, currentBlock, avgBlockTime, now),
		Source:          source,
		Payload:         payload(kind, raw.Args),
	}, nil
}

// ObservedAt approximates when a log was emitted, in epoch milliseconds.
func ObservedAt(block, currentBlock uint64, avgBlockTime time.Duration, now time.Time) int64 {
	nowMs := now.UnixMilli()
	if currentBlock == 0 || currentBlock <= block {
		return nowMs
	}
	distance := currentBlock - block
	perBlock := avgBlockTime.Milliseconds()
	if perBlock <= 0 {
		return nowMs
	}
	// compare before multiplying so huge distances cannot overflow
	if nowMs <= 0 || distance > uint64(nowMs/perBlock) {
		return 0
	}
	offset := int64(distance) * perBlock
	if offset >= nowMs {
		return 0
	}
	return nowMs - offset
}

func payload(kind domain.Kind, args map[string]any) domain.Payload {
	switch kind {
	case domain.KindJobPosted:
		return domain.JobPosted{
			JobID:    argUint(args, "jobId"),
			Employer: argAddress(args, "employer"),
			Title:    argString(args, "title"),
			Location: argString(args, "location"),
			Reward:   argBig(args, "reward"),
			Deadline: argUint(args, "deadline"),
		}
	case domain.KindBidPlaced:
		return domain.BidPlaced{
			JobID:  argUint(args, "jobId"),
			Worker: argAddress(args, "worker"),
			Amount: argBig(args, "amount"),
		}
	case domain.KindJobCompleted:
		return domain.JobCompleted{
			JobID:    argUint(args, "jobId"),
			Employer: argAddress(args, "employer"),
			Worker:   argAddress(args, "worker"),
		}
	case domain.KindJobCancelled:
		return domain.JobCancelled{
			JobID:    argUint(args, "jobId"),
			Employer: argAddress(args, "employer"),
		}
	default:
		return domain.ReputationUpdated{
			User:  argAddress(args, "user"),
			Score: argBig(args, "score"),
		}
	}
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func argAddress(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case common.Address:
		return strings.ToLower(v.Hex())
	case *common.Address:
		if v != nil {
			return strings.ToLower(v.Hex())
		}
	case string:
		return strings.ToLower(v)
	}
	return ""
}

func argBig(args map[string]any, key string) *big.Int {
	switch v := args[key].(type) {
	case *big.Int:
		if v != nil {
			return new(big.Int).Set(v)
		}
	case uint64:
		return new(big.Int).SetUint64(v)
	case uint32:
		return big.NewInt(int64(v))
	case uint8:
		return big.NewInt(int64(v))
	case int64:
		return big.NewInt(v)
	case int:
		return big.NewInt(int64(v))
	case string:
		if n, ok := new(big.Int).SetString(v, 0); ok {
			return n
		}
	}
	return new(big.Int)
}

func argUint(args map[string]any, key string) uint64 {
	n := argBig(args, key)
	if n.Sign() < 0 || !n.IsUint64() {
		return 0
	}
	return n.Uint64()
}
