package service

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
)

// SubmissionClient sends operations to a bundler and looks up their receipts.
type SubmissionClient struct {
	bundler    erc4337.Bundler
	entryPoint common.Address
	chainID    *big.Int
}

func NewSubmissionClient(bundler erc4337.Bundler, entryPoint common.Address, chainID *big.Int) *SubmissionClient {
	return &SubmissionClient{bundler: bundler, entryPoint: entryPoint, chainID: chainID}
}

// logger wraps the execution context with component info
func (c *SubmissionClient) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "submission").Logger()
	return &l
}

// Submit sends op to the bundler. When the request may have been accepted but
// no answer arrived, the error is SubmissionAmbiguous and carries the locally
// computed operation hash as its handle.
func (c *SubmissionClient) Submit(ctx context.Context, op *erc4337.Operation) (domain.TrackingHandle, error) {
	handle, err := c.bundler.SendUserOperation(ctx, op, c.entryPoint)
	if err == nil && handle == "" {
		err = errors.New("bundler accepted the operation without a handle")
	}
	if err == nil {
		c.logger(ctx).Info().
			Str("sender", op.Sender.Hex()).
			Str("user_op_hash", handle).
			Msg("operation submitted")
		return domain.TrackingHandle(handle), nil
	}

	c.logger(ctx).Warn().Err(err).
		Str("sender", op.Sender.Hex()).
		Msg("submission failed")

	if rpcErr, ok := erc4337.AsRPCError(err); ok {
		return "", domain.NewRelayError(domain.ErrorKindSubmissionRejected, rpcErr.Message, err)
	}

	var transportErr *erc4337.TransportError
	if errors.As(err, &transportErr) && !transportErr.Delivered {
		if ctx.Err() != nil {
			return "", domain.NewRelayError(domain.ErrorKindCancelled, "submission not sent: "+ctx.Err().Error(), err)
		}
		return "", domain.NewRelayError(domain.ErrorKindSubmissionUnavailable, err.Error(), err)
	}

	relayErr := domain.NewRelayError(domain.ErrorKindSubmissionAmbiguous, err.Error(), err)
	if localHash, hashErr := op.Hash(c.entryPoint, c.chainID); hashErr == nil {
		relayErr.Handle = domain.TrackingHandle(localHash.Hex())
	}
	return "", relayErr
}

// LookupReceipt returns nil while the bundler has no receipt for handle. The
// handle is sent back to the bundler as it was received.
func (c *SubmissionClient) LookupReceipt(ctx context.Context, handle domain.TrackingHandle) (*domain.Receipt, error) {
	if handle == "" {
		return nil, errors.New("empty tracking handle")
	}

	receipt, err := c.bundler.GetUserOperationReceipt(ctx, string(handle))
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, nil
	}

	txHash := receipt.TransactionHash()
	if txHash == "" {
		c.logger(ctx).Warn().
			Str("user_op_hash", string(handle)).
			Msg("receipt without transaction hash, treating as pending")
		return nil, nil
	}
	return &domain.Receipt{TransactionHash: txHash, Success: receipt.Success}, nil
}
