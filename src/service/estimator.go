package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
)

// NonceSource selects where the operation nonce is read from.
type NonceSource string

const (
	// NonceSourceAccount uses the sender's transaction count.
	NonceSourceAccount NonceSource = "account"
	// NonceSourceEntryPoint uses EntryPoint.getNonce(sender, 0).
	NonceSourceEntryPoint NonceSource = "entrypoint"
)

const entryPointABI = `[{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}]`

// ChainReader is the subset of ethclient.Client the estimator reads from.
type ChainReader interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Estimate is the output of a resource estimation.
type Estimate struct {
	GasEstimate uint64
	Nonce       *big.Int
}

type ResourceEstimator struct {
	client      ChainReader
	entryPoint  common.Address
	nonceSource NonceSource
	epABI       abi.ABI
}

func NewResourceEstimator(client ChainReader, entryPoint common.Address, nonceSource NonceSource) (*ResourceEstimator, error) {
	parsed, err := abi.JSON(strings.NewReader(entryPointABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse entry point abi: %w", err)
	}
	if nonceSource == "" {
		nonceSource = NonceSourceAccount
	}
	if nonceSource != NonceSourceAccount && nonceSource != NonceSourceEntryPoint {
		return nil, fmt.Errorf("unsupported nonce source %q", nonceSource)
	}
	return &ResourceEstimator{
		client:      client,
		entryPoint:  entryPoint,
		nonceSource: nonceSource,
		epABI:       parsed,
	}, nil
}

// logger wraps the execution context with component info
func (e *ResourceEstimator) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "estimator").Logger()
	return &l
}

// Estimate simulates the target call as sent by the account and reads the nonce.
func (e *ResourceEstimator) Estimate(ctx context.Context, sender common.Address, call *EncodedCall) (*Estimate, error) {
	target := call.Target
	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From: sender,
		To:   &target,
		Data: call.Data,
	})
	if err != nil {
		e.logger(ctx).Warn().Err(err).
			Str("sender", sender.Hex()).
			Str("target", target.Hex()).
			Msg("gas estimation failed")
		return nil, classifyEstimationError(err)
	}

	nonce, err := e.nonce(ctx, sender)
	if err != nil {
		e.logger(ctx).Warn().Err(err).
			Str("sender", sender.Hex()).
			Str("nonce_source", string(e.nonceSource)).
			Msg("failed to fetch nonce")
		return nil, domain.NewRelayError(domain.ErrorKindEstimationUnavailable, "failed to fetch nonce: "+err.Error(), err)
	}

	e.logger(ctx).Debug().
		Str("sender", sender.Hex()).
		Uint64("gas_estimate", gas).
		Str("nonce", nonce.String()).
		Msg("estimated resources")

	return &Estimate{GasEstimate: gas, Nonce: nonce}, nil
}

func (e *ResourceEstimator) nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	if e.nonceSource == NonceSourceAccount {
		n, err := e.client.PendingNonceAt(ctx, sender)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(n), nil
	}

	data, err := e.epABI.Pack("getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}
	entryPoint := e.entryPoint
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	unpacked, err := e.epABI.Unpack("getNonce", out)
	if err != nil {
		return nil, err
	}
	nonce, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected getNonce result")
	}
	return nonce, nil
}

func classifyEstimationError(err error) *domain.RelayError {
	if rpcErr, ok := erc4337.AsRPCError(err); ok {
		if erc4337.IsRevert(rpcErr) {
			return domain.NewRelayError(domain.ErrorKindSimulationReverted, rpcErr.Message, err)
		}
		return domain.NewRelayError(domain.ErrorKindEstimationUnavailable, rpcErr.Message, err)
	}
	return domain.NewRelayError(domain.ErrorKindEstimationUnavailable, err.Error(), err)
}
