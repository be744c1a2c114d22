package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/gigwatch/internal/core/domain"
	"github.com/vietddude/gigwatch/internal/infra/rpc"
)

// Reader serves job and bid read models from contract view calls.
type Reader struct {
	client   rpc.RPCClient
	contract *Contract
}

// NewReader creates a contract reader.
func NewReader(client rpc.RPCClient, contract *Contract) *Reader {
	return &Reader{client: client, contract: contract}
}

// GetJob reads one job. Unknown ids return domain.ErrJobNotFound.
func (r *Reader) GetJob(ctx context.Context, jobID uint64) (*domain.Job, error) {
	out, err := r.call(ctx, "getJob", new(big.Int).SetUint64(jobID))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
			return nil, fmt.Errorf("job %d: %w", jobID, domain.ErrJobNotFound)
		}
		return nil, err
	}
	if len(out) != 9 {
		return nil, fmt.Errorf("getJob: unexpected %d outputs", len(out))
	}
	if exists, _ := out[8].(bool); !exists {
		return nil, fmt.Errorf("job %d: %w", jobID, domain.ErrJobNotFound)
	}

	status, _ := out[7].(uint8)
	return &domain.Job{
		ID:          jobID,
		Employer:    addressString(out[0]),
		Worker:      addressString(out[1]),
		Title:       asString(out[2]),
		Description: asString(out[3]),
		Location:    asString(out[4]),
		Reward:      asBig(out[5]),
		Deadline:    asBig(out[6]).Uint64(),
		Status:      domain.JobStatusFromCode(status),
	}, nil
}

// GetBids reads every bid on a job in placement order.
func (r *Reader) GetBids(ctx context.Context, jobID uint64) ([]domain.Bid, error) {
	out, err := r.call(ctx, "getBids", new(big.Int).SetUint64(jobID))
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("getBids: unexpected %d outputs", len(out))
	}

	workers, _ := out[0].([]common.Address)
	amounts, _ := out[1].([]*big.Int)
	placedAt, _ := out[2].([]*big.Int)
	if len(amounts) != len(workers) || len(placedAt) != len(workers) {
		return nil, fmt.Errorf("getBids: mismatched arrays %d/%d/%d", len(workers), len(amounts), len(placedAt))
	}

	bids := make([]domain.Bid, len(workers))
	for i := range workers {
		bids[i] = domain.Bid{
			JobID:    jobID,
			Worker:   strings.ToLower(workers[i].Hex()),
			Amount:   asBig(amounts[i]),
			PlacedAt: asBig(placedAt[i]).Uint64(),
		}
	}
	return bids, nil
}

// GetEmployerJobs lists job ids posted by employer.
func (r *Reader) GetEmployerJobs(ctx context.Context, employer string) ([]uint64, error) {
	return r.jobIDs(ctx, "getEmployerJobs", employer)
}

// GetWorkerJobs lists job ids assigned to worker.
func (r *Reader) GetWorkerJobs(ctx context.Context, worker string) ([]uint64, error) {
	return r.jobIDs(ctx, "getWorkerJobs", worker)
}

func (r *Reader) jobIDs(ctx context.Context, method, address string) ([]uint64, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%s: invalid address %q", method, address)
	}
	out, err := r.call(ctx, method, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected %d outputs", method, len(out))
	}
	raw, _ := out[0].([]*big.Int)
	ids := make([]uint64, len(raw))
	for i, n := range raw {
		ids[i] = n.Uint64()
	}
	return ids, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := r.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := map[string]any{
		"to":   strings.ToLower(r.contract.Address.Hex()),
		"data": hexutil.Encode(data),
	}
	result, err := r.client.Execute(ctx, rpc.NewHTTPOperation("eth_call", msg, "latest"))
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", method, err)
	}

	hexStr, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("eth_call %s: invalid response %T", method, result)
	}
	ret, err := hexutil.Decode(hexStr)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", method, err)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("eth_call %s: empty return data", method)
	}

	out, err := r.contract.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func addressString(v any) string {
	if a, ok := v.(common.Address); ok {
		return strings.ToLower(a.Hex())
	}
	return ""
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBig(v any) *big.Int {
	if n, ok := v.(*big.Int); ok && n != nil {
		return n
	}
	return new(big.Int)
}
