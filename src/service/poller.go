package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

// ErrLookupsExhausted is returned by LookupSequence.Next once every attempt was used.
var ErrLookupsExhausted = errors.New("receipt lookups exhausted")

// ReceiptSource performs a single receipt lookup. A nil receipt means not yet known.
type ReceiptSource interface {
	LookupReceipt(ctx context.Context, handle domain.TrackingHandle) (*domain.Receipt, error)
}

type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// CallTimeout bounds each lookup. Zero leaves lookups bounded by the caller's context only.
	CallTimeout time.Duration
}

type ReceiptPoller struct {
	source ReceiptSource
	config PollerConfig
}

func NewReceiptPoller(source ReceiptSource, config PollerConfig) *ReceiptPoller {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &ReceiptPoller{source: source, config: config}
}

// logger wraps the execution context with component info
func (p *ReceiptPoller) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "receipt-poller").Logger()
	return &l
}

// Lookups returns a new bounded sequence of lookups for handle.
func (p *ReceiptPoller) Lookups(handle domain.TrackingHandle) *LookupSequence {
	return &LookupSequence{poller: p, handle: handle}
}

// LookupSequence is a finite, non-restartable series of receipt lookups. The
// first lookup runs immediately; later ones wait the poll interval.
type LookupSequence struct {
	poller   *ReceiptPoller
	handle   domain.TrackingHandle
	attempts int
	done     bool
}

// Attempts returns how many lookups were performed.
func (s *LookupSequence) Attempts() int {
	return s.attempts
}

// Next performs the next lookup. It returns (nil, nil) when the lookup found
// nothing, ErrLookupsExhausted once the sequence is finished and ctx.Err() when
// the caller gave up. Lookup failures count as empty results.
func (s *LookupSequence) Next(ctx context.Context) (*domain.Receipt, error) {
	p := s.poller
	if s.done || s.attempts >= p.config.MaxAttempts {
		s.done = true
		return nil, ErrLookupsExhausted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.attempts > 0 && p.config.Interval > 0 {
		timer := time.NewTimer(p.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	s.attempts++
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.config.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.config.CallTimeout)
	}
	receipt, err := p.source.LookupReceipt(callCtx, s.handle)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger(ctx).Debug().Err(err).
			Str("user_op_hash", string(s.handle)).
			Int("attempt", s.attempts).
			Msg("receipt lookup failed, treating as pending")
		return nil, nil
	}
	if receipt != nil {
		s.done = true
	}
	return receipt, nil
}

// Wait polls until a receipt appears. It fails with TimedOut when every attempt
// came back empty and with Cancelled when ctx ends first. Neither implies the
// operation failed.
func (p *ReceiptPoller) Wait(ctx context.Context, handle domain.TrackingHandle) (*domain.Settlement, error) {
	lookups := p.Lookups(handle)
	for {
		receipt, err := lookups.Next(ctx)
		switch {
		case errors.Is(err, ErrLookupsExhausted):
			p.logger(ctx).Warn().
				Str("user_op_hash", string(handle)).
				Int("attempts", lookups.Attempts()).
				Msg("no receipt within polling window")
			return nil, &domain.RelayError{
				Kind:    domain.ErrorKindTimedOut,
				Message: fmt.Sprintf("no receipt after %d lookups", lookups.Attempts()),
				Handle:  handle,
			}
		case err != nil:
			return nil, &domain.RelayError{
				Kind:    domain.ErrorKindCancelled,
				Message: "stopped waiting for receipt: " + err.Error(),
				Handle:  handle,
				Err:     err,
			}
		case receipt != nil:
			p.logger(ctx).Info().
				Str("user_op_hash", string(handle)).
				Str("transaction_hash", receipt.TransactionHash).
				Bool("success", receipt.Success).
				Int("attempts", lookups.Attempts()).
				Msg("operation included")
			return &domain.Settlement{
				Handle:          handle,
				TransactionHash: receipt.TransactionHash,
				Success:         receipt.Success,
			}, nil
		}
	}
}
