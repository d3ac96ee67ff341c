package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Writer submits admin transactions to escrow contracts, signed with the
// operator key. It returns the transaction hash immediately; confirmation is
// observed by the poller on subsequent refreshes.
type Writer struct {
	client     *ethclient.Client
	escrowABI  abi.ABI
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	logger     *slog.Logger
}

func NewWriter(client *ethclient.Client, privateKey *ecdsa.PrivateKey, chainID int64, logger *slog.Logger) (*Writer, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("chain: writer requires a private key")
	}
	parsed, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse escrow abi: %w", err)
	}
	return &Writer{
		client:     client,
		escrowABI:  parsed,
		privateKey: privateKey,
		from:       ethcrypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(chainID),
		logger:     logger.With(slog.String("component", "chain_writer")),
	}, nil
}

func (w *Writer) send(ctx context.Context, pool string, method string, args ...any) (string, error) {
	if !common.IsHexAddress(pool) {
		return "", fmt.Errorf("chain: %s: invalid pool address %q", method, pool)
	}
	data, err := w.escrowABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("chain: pack %s: %w", method, err)
	}
	addr := common.HexToAddress(pool)

	nonce, err := w.client.PendingNonceAt(ctx, w.from)
	if err != nil {
		return "", fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: suggest gas price: %w", err)
	}
	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From: w.from,
		To:   &addr,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("chain: estimate gas for %s: %w", method, err)
	}

	tx := ethtypes.NewTransaction(nonce, addr, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(w.chainID), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("chain: sign %s: %w", method, err)
	}
	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("chain: send %s on %s: %w", method, pool, err)
	}

	hash := signedTx.Hash().Hex()
	w.logger.Info("transaction submitted",
		slog.String("method", method),
		slog.String("pool", pool),
		slog.String("tx_hash", hash))
	return hash, nil
}

func (w *Writer) SetWinner(ctx context.Context, pool string, winner bool) (string, error) {
	return w.send(ctx, pool, "setWinner", winner)
}

func (w *Writer) SetEmergencyStop(ctx context.Context, pool string, stopped bool) (string, error) {
	return w.send(ctx, pool, "setEmergencyStop", stopped)
}

func (w *Writer) CancelPool(ctx context.Context, pool, reason string) (string, error) {
	return w.send(ctx, pool, "cancelPool", reason)
}

func (w *Writer) EmergencyResolve(ctx context.Context, pool string, winner bool, reason string) (string, error) {
	return w.send(ctx, pool, "emergencyResolve", winner, reason)
}
