package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

type ReconcilerConfig struct {
	BatchSize   int
	CallTimeout time.Duration
}

// Reconciler settles relays whose outcome was unknown when the request ended.
// It only looks receipts up and never resubmits.
type Reconciler struct {
	repo     RelayRepository
	cache    RelayStatusCache
	receipts ReceiptSource
	metrics  *Metrics
	config   ReconcilerConfig
}

func NewReconciler(repo RelayRepository, cache RelayStatusCache, receipts ReceiptSource, metrics *Metrics, config ReconcilerConfig) *Reconciler {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Reconciler{
		repo:     repo,
		cache:    cache,
		receipts: receipts,
		metrics:  metrics,
		config:   config,
	}
}

// logger wraps the execution context with component info
func (r *Reconciler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "reconciler").Logger()
	return &l
}

// Reconcile performs one receipt lookup per unresolved relay and returns how
// many were settled.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	relays, err := r.repo.FindUnresolvedRelays(ctx, r.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(relays) == 0 {
		r.logger(ctx).Debug().Msg("no unresolved relays")
		return 0, nil
	}

	settled := 0
	// relays still unknown after this cycle move to the back of the queue
	var checked []uuid.UUID
	defer func() {
		if err := r.repo.MarkRelaysChecked(context.WithoutCancel(ctx), checked, time.Now()); err != nil {
			r.logger(ctx).Warn().Err(err).Int("relays", len(checked)).Msg("failed to mark relays checked")
		}
	}()

	for _, relay := range relays {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		checked = append(checked, relay.ID)
		if relay.Handle == nil {
			r.metrics.IncReconciled("no_handle")
			continue
		}

		receipt, err := callWithTimeout(ctx, r.config.CallTimeout, func(ctx context.Context) (*domain.Receipt, error) {
			return r.receipts.LookupReceipt(ctx, domain.TrackingHandle(*relay.Handle))
		})
		if err != nil {
			r.metrics.IncReconciled("error")
			r.logger(ctx).Warn().Err(err).
				Str("relay_id", relay.ID.String()).
				Msg("receipt lookup failed")
			continue
		}
		if receipt == nil {
			r.metrics.IncReconciled("pending")
			continue
		}

		relay.Settle(&domain.Settlement{
			Handle:          domain.TrackingHandle(*relay.Handle),
			TransactionHash: receipt.TransactionHash,
			Success:         receipt.Success,
		})
		if err := r.repo.UpdateRelay(ctx, relay); err != nil {
			r.metrics.IncReconciled("error")
			r.logger(ctx).Error().Err(err).
				Str("relay_id", relay.ID.String()).
				Msg("failed to store reconciled relay")
			continue
		}
		if err := r.cache.SetRelay(ctx, relay); err != nil {
			r.logger(ctx).Warn().Err(err).Str("relay_id", relay.ID.String()).Msg("failed to cache relay")
		}

		checked = checked[:len(checked)-1]
		settled++
		r.metrics.IncReconciled("included")
		r.logger(ctx).Info().
			Str("relay_id", relay.ID.String()).
			Str("transaction_hash", receipt.TransactionHash).
			Msg("unresolved relay settled")
	}

	r.logger(ctx).Debug().
		Int("checked", len(relays)).
		Int("settled", settled).
		Msg("reconcile cycle completed")
	return settled, nil
}

// Schedule registers Reconcile on scheduler every interval. Runs never overlap.
func (r *Reconciler) Schedule(ctx context.Context, scheduler gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	return scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.Reconcile(ctx); err != nil {
				r.logger(ctx).Error().Err(err).Msg("reconcile cycle failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
