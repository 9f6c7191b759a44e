package service

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
	"github.com/tipvault/relayer/erc4337"
)

const (
	// MinVerificationGasLimit and MinPreVerificationGas are enforced by bundlers at
	// submission; simulation does not catch values below them.
	MinVerificationGasLimit uint64 = 100000
	MinPreVerificationGas   uint64 = 21000
)

// GasPolicy holds the static gas and fee values applied to every operation.
type GasPolicy struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	VerificationGasLimit uint64
	PreVerificationGas   uint64
	// CallGasBufferPercent is added on top of the simulated gas.
	CallGasBufferPercent uint64
}

func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		MaxFeePerGas:         GweiToWei(decimal.NewFromInt(1)),
		MaxPriorityFeePerGas: GweiToWei(decimal.NewFromInt(1)),
		VerificationGasLimit: 150000,
		PreVerificationGas:   50000,
		CallGasBufferPercent: 20,
	}
}

// GweiToWei converts a gwei amount to wei, truncating sub-wei fractions.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Shift(9).Truncate(0).BigInt()
}

// BuildOperation assembles the unsponsored operation for a call. The sponsor
// fields stay unset and the signature is a placeholder unless signature is given.
func BuildOperation(sender common.Address, call *EncodedCall, estimate *Estimate, policy GasPolicy, signature []byte) (*erc4337.Operation, error) {
	switch {
	case sender == (common.Address{}):
		return nil, errors.New("sender is the zero address")
	case call == nil || len(call.CallData) == 0:
		return nil, errors.New("call data is empty")
	case estimate == nil || estimate.Nonce == nil:
		return nil, errors.New("estimate is incomplete")
	case estimate.Nonce.Sign() < 0:
		return nil, errors.New("nonce is negative")
	case policy.MaxFeePerGas == nil || policy.MaxPriorityFeePerGas == nil:
		return nil, errors.New("fee policy is incomplete")
	case policy.MaxPriorityFeePerGas.Cmp(policy.MaxFeePerGas) > 0:
		return nil, fmt.Errorf("max priority fee %s exceeds max fee %s", policy.MaxPriorityFeePerGas, policy.MaxFeePerGas)
	}

	callGas := new(big.Int).SetUint64(estimate.GasEstimate)
	callGas.Mul(callGas, new(big.Int).SetUint64(100+policy.CallGasBufferPercent))
	callGas.Div(callGas, big.NewInt(100))
	if callGas.Cmp(new(big.Int).SetUint64(params.TxGas)) < 0 {
		callGas.SetUint64(params.TxGas)
	}

	sig := erc4337.DummySignature
	if len(signature) > 0 {
		sig = signature
	}

	return &erc4337.Operation{
		Sender:               sender,
		Nonce:                (*hexutil.Big)(new(big.Int).Set(estimate.Nonce)),
		CallData:             append(hexutil.Bytes{}, call.CallData...),
		CallGasLimit:         (*hexutil.Big)(callGas),
		VerificationGasLimit: (*hexutil.Big)(new(big.Int).SetUint64(max(policy.VerificationGasLimit, MinVerificationGasLimit))),
		PreVerificationGas:   (*hexutil.Big)(new(big.Int).SetUint64(max(policy.PreVerificationGas, MinPreVerificationGas))),
		MaxFeePerGas:         (*hexutil.Big)(new(big.Int).Set(policy.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(new(big.Int).Set(policy.MaxPriorityFeePerGas)),
		Signature:            append(hexutil.Bytes{}, sig...),
	}, nil
}
