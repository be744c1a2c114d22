package cli

import (
	"github.com/vietddude/gigwatch/internal/core/config"
	"github.com/vietddude/gigwatch/internal/infra/chain/evm"
	"github.com/vietddude/gigwatch/internal/infra/rpc"
)

// newSource builds the RPC client and log source the one-shot commands use.
func newSource(cfg *config.AppConfig) (*rpc.Client, *evm.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	router := rpc.NewRouter()
	for _, p := range cfg.Chain.Providers {
		router.AddProvider(cfg.Chain.ChainID, rpc.NewHTTPProvider(p.Name, p.URL, p.Timeout))
	}
	client := rpc.NewClient(cfg.Chain.ChainID, router)

	source, err := evm.NewAdapter(client, evm.Options{
		ContractAddress: cfg.Chain.ContractAddress,
		AvgBlockTime:    cfg.Chain.AvgBlockTime,
		HeadCacheTTL:    cfg.Chain.HeadCacheTTL,
		MaxBlockRange:   cfg.Chain.MaxBlockRange,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, source, nil
}
