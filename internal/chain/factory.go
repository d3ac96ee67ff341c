package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Factory enumerates deployed escrow pools. An empty factory address is a
// valid configuration: Pools then returns an empty list and discovery runs
// purely off the database.
type Factory struct {
	client     *ethclient.Client
	factoryABI abi.ABI
	address    string
	logger     *slog.Logger
}

func NewFactory(client *ethclient.Client, address string, logger *slog.Logger) (*Factory, error) {
	if address != "" && !common.IsHexAddress(address) {
		return nil, fmt.Errorf("chain: invalid factory address %q", address)
	}
	parsed, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse factory abi: %w", err)
	}
	return &Factory{
		client:     client,
		factoryABI: parsed,
		address:    address,
		logger:     logger.With(slog.String("component", "chain_factory")),
	}, nil
}

func (f *Factory) Pools(ctx context.Context) ([]string, error) {
	if f.address == "" {
		return nil, nil
	}
	data, err := f.factoryABI.Pack("getAllPools")
	if err != nil {
		return nil, fmt.Errorf("chain: pack getAllPools: %w", err)
	}
	addr := common.HexToAddress(f.address)
	raw, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call getAllPools: %w", err)
	}
	out, err := f.factoryABI.Unpack("getAllPools", raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack getAllPools: %w", err)
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("chain: getAllPools returned %T, want []common.Address", out[0])
	}
	pools := make([]string, 0, len(addrs))
	for _, a := range addrs {
		pools = append(pools, a.Hex())
	}
	return pools, nil
}
