package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/gigwatch/internal/core/domain"
)

// MarketplaceABI is the subset of the gig marketplace contract we read.
const MarketplaceABI = `[
  {"type":"event","name":"JobPosted","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":true},
    {"name":"employer","type":"address","indexed":true},
    {"name":"title","type":"string","indexed":false},
    {"name":"location","type":"string","indexed":false},
    {"name":"reward","type":"uint256","indexed":false},
    {"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"BidPlaced","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":true},
    {"name":"worker","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"JobCompleted","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":true},
    {"name":"employer","type":"address","indexed":true},
    {"name":"worker","type":"address","indexed":true}]},
  {"type":"event","name":"JobCancelled","anonymous":false,"inputs":[
    {"name":"jobId","type":"uint256","indexed":true},
    {"name":"employer","type":"address","indexed":true}]},
  {"type":"event","name":"ReputationUpdated","anonymous":false,"inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"score","type":"uint256","indexed":false}]},
  {"type":"function","name":"getJob","stateMutability":"view",
    "inputs":[{"name":"jobId","type":"uint256"}],
    "outputs":[
      {"name":"employer","type":"address"},
      {"name":"worker","type":"address"},
      {"name":"title","type":"string"},
      {"name":"description","type":"string"},
      {"name":"location","type":"string"},
      {"name":"reward","type":"uint256"},
      {"name":"deadline","type":"uint256"},
      {"name":"status","type":"uint8"},
      {"name":"exists","type":"bool"}]},
  {"type":"function","name":"getBids","stateMutability":"view",
    "inputs":[{"name":"jobId","type":"uint256"}],
    "outputs":[
      {"name":"workers","type":"address[]"},
      {"name":"amounts","type":"uint256[]"},
      {"name":"placedAt","type":"uint256[]"}]},
  {"type":"function","name":"getEmployerJobs","stateMutability":"view",
    "inputs":[{"name":"employer","type":"address"}],
    "outputs":[{"name":"jobIds","type":"uint256[]"}]},
  {"type":"function","name":"getWorkerJobs","stateMutability":"view",
    "inputs":[{"name":"worker","type":"address"}],
    "outputs":[{"name":"jobIds","type":"uint256[]"}]}
]`

// Contract binds the marketplace ABI to a deployed address.
type Contract struct {
	Address common.Address
	abi     abi.ABI
	topics  map[common.Hash]domain.Kind
}

// NewContract parses the marketplace ABI for the contract at address.
func NewContract(address string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(MarketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("parse marketplace abi: %w", err)
	}

	c := &Contract{
		Address: common.HexToAddress(address),
		abi:     parsed,
		topics:  make(map[common.Hash]domain.Kind),
	}
	for _, kind := range domain.AllKinds() {
		ev, ok := parsed.Events[string(kind)]
		if !ok {
			return nil, fmt.Errorf("abi has no event %s", kind)
		}
		c.topics[ev.ID] = kind
	}
	return c, nil
}

// Topic returns topic0 for the event of kind.
func (c *Contract) Topic(kind domain.Kind) (common.Hash, error) {
	ev, ok := c.abi.Events[string(kind)]
	if !ok {
		return common.Hash{}, fmt.Errorf("topic for %q: %w", kind, domain.ErrUnknownKind)
	}
	return ev.ID, nil
}

// KindOf maps topic0 back to an event kind.
func (c *Contract) KindOf(topic0 common.Hash) (domain.Kind, bool) {
	k, ok := c.topics[topic0]
	return k, ok
}

// Filter builds the eth_getLogs / eth_subscribe filter object for kind.
func (c *Contract) Filter(kind domain.Kind) (map[string]any, error) {
	topic, err := c.Topic(kind)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"address": strings.ToLower(c.Address.Hex()),
		"topics":  []any{[]string{topic.Hex()}},
	}, nil
}

// DecodeArgs fills log.Args from its topics and data.
// Decoding is best effort: on failure Args holds whatever was decoded.
func (c *Contract) DecodeArgs(kind domain.Kind, log *domain.RawLog) error {
	ev, ok := c.abi.Events[string(kind)]
	if !ok {
		return fmt.Errorf("decode %q: %w", kind, domain.ErrUnknownKind)
	}

	args := make(map[string]any)
	log.Args = args

	if len(log.Data) > 0 {
		if err := ev.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
			return fmt.Errorf("unpack %s data: %w", kind, err)
		}
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) == 0 || len(log.Topics) < 2 {
		return nil
	}

	topics := make([]common.Hash, 0, len(log.Topics)-1)
	for _, t := range log.Topics[1:] {
		topics = append(topics, common.HexToHash(t))
	}
	if len(topics) > len(indexed) {
		topics = topics[:len(indexed)]
	}
	if err := abi.ParseTopicsIntoMap(args, indexed[:len(topics)], topics); err != nil {
		return fmt.Errorf("parse %s topics: %w", kind, err)
	}
	return nil
}

// Pack encodes a view call.
func (c *Contract) Pack(method string, args ...any) ([]byte, error) {
	return c.abi.Pack(method, args...)
}

// Unpack decodes a view call's return data.
func (c *Contract) Unpack(method string, data []byte) ([]any, error) {
	return c.abi.Unpack(method, data)
}
