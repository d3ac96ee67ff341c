package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bellanapoli/bellad/internal/domain"
)

// Reader performs read-only calls against escrow pool contracts. Every method
// is a single eth_call so one flaky read cannot poison the rest of a snapshot.
type Reader struct {
	client    *ethclient.Client
	escrowABI abi.ABI
	logger    *slog.Logger
}

func NewReader(rpcURL string, logger *slog.Logger) (*Reader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return NewReaderWithClient(client, logger)
}

// NewReaderWithClient wraps an existing client, shared with the writer so both
// ride one RPC connection.
func NewReaderWithClient(client *ethclient.Client, logger *slog.Logger) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse escrow abi: %w", err)
	}
	return &Reader{
		client:    client,
		escrowABI: parsed,
		logger:    logger.With(slog.String("component", "chain_reader")),
	}, nil
}

func (r *Reader) Close() {
	r.client.Close()
}

func (r *Reader) call(ctx context.Context, pool string, method string, args ...any) ([]any, error) {
	if !common.IsHexAddress(pool) {
		return nil, fmt.Errorf("chain: %s: invalid pool address %q", method, pool)
	}
	data, err := r.escrowABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	addr := common.HexToAddress(pool)
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, pool, err)
	}
	out, err := r.escrowABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return out, nil
}

func (r *Reader) callBool(ctx context.Context, pool, method string) (bool, error) {
	out, err := r.call(ctx, pool, method)
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: %s returned %T, want bool", method, out[0])
	}
	return v, nil
}

func (r *Reader) BettingOpen(ctx context.Context, pool string) (bool, error) {
	return r.callBool(ctx, pool, "isBettingCurrentlyOpen")
}

func (r *Reader) EmergencyStopped(ctx context.Context, pool string) (bool, error) {
	return r.callBool(ctx, pool, "emergencyStop")
}

func (r *Reader) Cancelled(ctx context.Context, pool string) (bool, error) {
	return r.callBool(ctx, pool, "cancelled")
}

func (r *Reader) Stats(ctx context.Context, pool string) (domain.PoolStats, error) {
	out, err := r.call(ctx, pool, "getPoolStats")
	if err != nil {
		return domain.PoolStats{}, err
	}
	if len(out) != 7 {
		return domain.PoolStats{}, fmt.Errorf("chain: getPoolStats returned %d values, want 7", len(out))
	}
	return domain.PoolStats{
		TotalYes:    out[0].(*big.Int),
		TotalNo:     out[1].(*big.Int),
		TotalBets:   out[2].(*big.Int).Int64(),
		BettorCount: out[3].(*big.Int).Int64(),
		Closed:      out[4].(bool),
		WinnerSet:   out[5].(bool),
		Winner:      out[6].(bool),
	}, nil
}

func (r *Reader) FeeInfo(ctx context.Context, pool string) (domain.FeeInfo, error) {
	out, err := r.call(ctx, pool, "getFeeInfo")
	if err != nil {
		return domain.FeeInfo{}, err
	}
	if len(out) != 4 {
		return domain.FeeInfo{}, fmt.Errorf("chain: getFeeInfo returned %d values, want 4", len(out))
	}
	return domain.FeeInfo{
		FeeWallet:     out[0].(common.Address).Hex(),
		FeeBps:        out[1].(*big.Int).Int64(),
		FeeCalculated: out[2].(bool),
		FeeSent:       out[3].(bool),
	}, nil
}

func (r *Reader) RedistributionInfo(ctx context.Context, pool string) (domain.RedistributionInfo, error) {
	out, err := r.call(ctx, pool, "getRedistributionInfo")
	if err != nil {
		return domain.RedistributionInfo{}, err
	}
	if len(out) != 5 {
		return domain.RedistributionInfo{}, fmt.Errorf("chain: getRedistributionInfo returned %d values, want 5", len(out))
	}
	return domain.RedistributionInfo{
		WinningPot:          out[0].(*big.Int),
		LosingPot:           out[1].(*big.Int),
		FeeAmount:           out[2].(*big.Int),
		NetLosingPot:        out[3].(*big.Int),
		TotalRedistribution: out[4].(*big.Int),
	}, nil
}

func (r *Reader) Info(ctx context.Context, pool string) (domain.PoolInfo, error) {
	out, err := r.call(ctx, pool, "getPoolInfo")
	if err != nil {
		return domain.PoolInfo{}, err
	}
	if len(out) != 5 {
		return domain.PoolInfo{}, fmt.Errorf("chain: getPoolInfo returned %d values, want 5", len(out))
	}
	return domain.PoolInfo{
		Title:       out[0].(string),
		Description: out[1].(string),
		Category:    out[2].(string),
		ClosingDate: time.Unix(out[3].(*big.Int).Int64(), 0).UTC(),
		ClosingBid:  time.Unix(out[4].(*big.Int).Int64(), 0).UTC(),
	}, nil
}

func (r *Reader) UserBet(ctx context.Context, pool, wallet string) (domain.ChainBet, error) {
	if !common.IsHexAddress(wallet) {
		return domain.ChainBet{}, fmt.Errorf("chain: getUserBet: invalid wallet address %q", wallet)
	}
	out, err := r.call(ctx, pool, "getUserBet", common.HexToAddress(wallet))
	if err != nil {
		return domain.ChainBet{}, err
	}
	if len(out) != 4 {
		return domain.ChainBet{}, fmt.Errorf("chain: getUserBet returned %d values, want 4", len(out))
	}
	amount := out[0].(*big.Int)
	if amount.Sign() == 0 {
		return domain.ChainBet{}, domain.ErrNotFound
	}
	side := domain.BetSideNo
	if out[1].(bool) {
		side = domain.BetSideYes
	}
	return domain.ChainBet{
		Amount:    amount,
		Side:      side,
		Claimed:   out[2].(bool),
		Timestamp: time.Unix(out[3].(*big.Int).Int64(), 0).UTC(),
	}, nil
}
