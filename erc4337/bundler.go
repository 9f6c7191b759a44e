package erc4337

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	methodChainID                 = "eth_chainId"
	methodSendUserOperation       = "eth_sendUserOperation"
	methodGetUserOperationReceipt = "eth_getUserOperationReceipt"
)

type parsedTransaction struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       string         `json:"blockNumber"`
	From              common.Address `json:"from"`
	CumulativeGasUsed string         `json:"cumulativeGasUsed"`
	GasUsed           string         `json:"gasUsed"`
	Logs              []*types.Log   `json:"logs"`
	TransactionHash   string         `json:"transactionHash"`
	TransactionIndex  string         `json:"transactionIndex"`
	EffectiveGasPrice string         `json:"effectiveGasPrice"`
}

type UserOperationReceipt struct {
	UserOpHash    string             `json:"userOpHash"`
	Sender        common.Address     `json:"sender"`
	Paymaster     common.Address     `json:"paymaster"`
	Nonce         string             `json:"nonce"`
	Success       bool               `json:"success"`
	ActualGasCost string             `json:"actualGasCost"`
	ActualGasUsed string             `json:"actualGasUsed"`
	Reason        string             `json:"reason,omitempty"`
	Receipt       *parsedTransaction `json:"receipt"`
}

// TransactionHash returns the hash of the bundle transaction that included the
// operation, or "" when the bundler omitted the inner receipt.
func (r *UserOperationReceipt) TransactionHash() string {
	if r == nil || r.Receipt == nil {
		return ""
	}
	return r.Receipt.TransactionHash
}

// Bundler is the relay side of the pipeline. Errors are either *RPCError (the
// bundler answered with a JSON-RPC error) or *TransportError.
//
// The handle returned by SendUserOperation is passed back to
// GetUserOperationReceipt as is. Most bundlers use the operation hash, but
// nothing here depends on that.
type Bundler interface {
	ChainId(ctx context.Context) (*big.Int, error)
	SendUserOperation(ctx context.Context, op *Operation, entryPoint common.Address) (string, error)
	// GetUserOperationReceipt returns (nil, nil) while the operation is unknown or pending.
	GetUserOperationReceipt(ctx context.Context, handle string) (*UserOperationReceipt, error)
}

// BundlerClient talks to a bundler over JSON-RPC. It holds no per-request state
// and is safe for concurrent use.
type BundlerClient struct {
	client *rpc.Client
}

func DialBundler(ctx context.Context, rawurl string) (*BundlerClient, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewBundlerClient(c), nil
}

func NewBundlerClient(c *rpc.Client) *BundlerClient {
	return &BundlerClient{c}
}

func (b *BundlerClient) Close() {
	b.client.Close()
}

func (b *BundlerClient) ChainId(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := b.client.CallContext(ctx, &result, methodChainID); err != nil {
		return nil, wrapCallError(methodChainID, err)
	}
	return (*big.Int)(&result), nil
}

func (b *BundlerClient) SendUserOperation(ctx context.Context, op *Operation, entryPoint common.Address) (string, error) {
	// a request that is never written cannot have been accepted
	if err := ctx.Err(); err != nil {
		return "", &TransportError{Method: methodSendUserOperation, Err: err}
	}
	var result string
	if err := b.client.CallContext(ctx, &result, methodSendUserOperation, op, entryPoint); err != nil {
		return "", wrapCallError(methodSendUserOperation, err)
	}
	return result, nil
}

func (b *BundlerClient) GetUserOperationReceipt(ctx context.Context, handle string) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	err := b.client.CallContext(ctx, &receipt, methodGetUserOperationReceipt, handle)
	if err == rpc.ErrNoResult {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCallError(methodGetUserOperationReceipt, err)
	}
	return receipt, nil
}
