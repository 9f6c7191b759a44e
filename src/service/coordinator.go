package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/erc4337"
	"github.com/tipvault/relayer/src/domain"
)

type Encoder interface {
	Encode(intent domain.CallIntent) (*EncodedCall, error)
}

type Estimator interface {
	Estimate(ctx context.Context, sender common.Address, call *EncodedCall) (*Estimate, error)
}

type Sponsor interface {
	Sponsor(ctx context.Context, op *erc4337.Operation) (*erc4337.Sponsorship, error)
}

type Submitter interface {
	Submit(ctx context.Context, op *erc4337.Operation) (domain.TrackingHandle, error)
}

// RelayStages are the pipeline collaborators. Signer is optional.
type RelayStages struct {
	Encoder   Encoder
	Estimator Estimator
	Sponsor   Sponsor
	Submitter Submitter
	Poller    *ReceiptPoller
	Signer    Signer
}

type CoordinatorConfig struct {
	EntryPoint common.Address
	ChainID    *big.Int
	Policy     GasPolicy
	// CallTimeout bounds each estimation, sponsorship and submission call.
	CallTimeout time.Duration
	// TransportRetries is how many times a stage that failed to reach its remote is retried.
	TransportRetries int
}

// RelayCoordinator runs encode, estimate, build, sponsor, submit and poll for
// one request. It keeps no state between runs and may be shared.
type RelayCoordinator struct {
	stages RelayStages
	config CoordinatorConfig
}

func NewRelayCoordinator(stages RelayStages, config CoordinatorConfig) *RelayCoordinator {
	if config.TransportRetries < 0 {
		config.TransportRetries = 0
	}
	return &RelayCoordinator{stages: stages, config: config}
}

// logger wraps the execution context with component info
func (c *RelayCoordinator) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "coordinator").Logger()
	return &l
}

// Relay returns the settlement of req or a *domain.RelayError. Cancelling ctx
// after submission only stops observing the operation.
func (c *RelayCoordinator) Relay(ctx context.Context, req domain.RelayRequest) (*domain.Settlement, error) {
	if req.Caller == (common.Address{}) {
		return nil, invalidIntent(errors.New("caller is the zero address"))
	}

	call, err := c.stages.Encoder.Encode(req.Intent)
	if err != nil {
		return nil, asRelayError(err, domain.ErrorKindInvalidIntent)
	}
	c.logger(ctx).Debug().
		Str("caller", req.Caller.Hex()).
		Str("target", call.Target.Hex()).
		Str("function", req.Intent.Signature).
		Msg("intent encoded")

	estimate, err := runStage(ctx, c, "estimate", func(ctx context.Context) (*Estimate, error) {
		return c.stages.Estimator.Estimate(ctx, req.Caller, call)
	})
	if err != nil {
		return nil, err
	}

	op, err := BuildOperation(req.Caller, call, estimate, c.config.Policy, req.Signature)
	if err != nil {
		return nil, domain.NewRelayError(domain.ErrorKindInvalidOperation, err.Error(), err)
	}

	sponsorship, err := runStage(ctx, c, "sponsor", func(ctx context.Context) (*erc4337.Sponsorship, error) {
		return c.stages.Sponsor.Sponsor(ctx, op)
	})
	if err != nil {
		return nil, err
	}
	op.ApplySponsorship(sponsorship)

	if c.stages.Signer != nil && len(req.Signature) == 0 {
		signature, err := c.stages.Signer.SignOperation(op, c.config.EntryPoint, c.config.ChainID)
		if err != nil {
			return nil, domain.NewRelayError(domain.ErrorKindInvalidOperation, err.Error(), err)
		}
		op.Signature = signature
	}

	if missing := op.Missing(); len(missing) > 0 {
		c.logger(ctx).Error().
			Strs("missing", missing).
			Msg("refusing to submit incomplete operation")
		return nil, domain.NewRelayError(domain.ErrorKindInvalidOperation,
			"operation is missing "+strings.Join(missing, ", "), nil)
	}

	// nothing has been sent yet, so the outcome is still known
	if err := ctx.Err(); err != nil {
		return nil, &domain.RelayError{
			Kind:    domain.ErrorKindCancelled,
			Message: "cancelled before submission: " + err.Error(),
			Err:     err,
		}
	}

	handle, err := runStage(ctx, c, "submit", func(ctx context.Context) (domain.TrackingHandle, error) {
		return c.stages.Submitter.Submit(ctx, op)
	})
	if err != nil {
		return nil, err
	}

	return c.stages.Poller.Wait(ctx, handle)
}

// runStage calls fn with a per-call timeout and retries retryable failures.
// A retryable failure caused by the caller's cancellation becomes Cancelled.
func runStage[T any](ctx context.Context, c *RelayCoordinator, stage string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		out, err := callWithTimeout(ctx, c.config.CallTimeout, fn)
		if err == nil {
			return out, nil
		}

		relayErr := asRelayError(err, domain.ErrorKindInvalidOperation)
		if ctx.Err() != nil && relayErr.Kind.Retryable() {
			return zero, &domain.RelayError{
				Kind:    domain.ErrorKindCancelled,
				Message: stage + " interrupted: " + ctx.Err().Error(),
				Err:     err,
			}
		}
		if !relayErr.Kind.Retryable() || attempt >= c.config.TransportRetries {
			c.logger(ctx).Error().Err(relayErr).
				Str("stage", stage).
				Str("kind", string(relayErr.Kind)).
				Int("attempts", attempt+1).
				Msg("relay stage failed")
			return zero, relayErr
		}

		c.logger(ctx).Warn().Err(relayErr).
			Str("stage", stage).
			Int("attempt", attempt+1).
			Msg("retrying relay stage")
	}
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func asRelayError(err error, fallback domain.ErrorKind) *domain.RelayError {
	var relayErr *domain.RelayError
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return domain.NewRelayError(fallback, err.Error(), err)
}
