package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

type RelayRepository interface {
	CreateRelay(ctx context.Context, relay *domain.Relay) error
	UpdateRelay(ctx context.Context, relay *domain.Relay) error
	// FindRelayByID returns domain.ErrRelayNotFound for unknown ids.
	FindRelayByID(ctx context.Context, id uuid.UUID) (*domain.Relay, error)
	FindUnresolvedRelays(ctx context.Context, limit int) ([]*domain.Relay, error)
	MarkRelaysChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type RelayStatusCache interface {
	SetRelay(ctx context.Context, relay *domain.Relay) error
	// GetRelay returns (nil, nil) on a cache miss.
	GetRelay(ctx context.Context, id uuid.UUID) (*domain.Relay, error)
}

type Relayer interface {
	Relay(ctx context.Context, req domain.RelayRequest) (*domain.Settlement, error)
}

// RelayService runs relays and keeps their records.
type RelayService struct {
	relayer Relayer
	repo    RelayRepository
	cache   RelayStatusCache
	metrics *Metrics
	chainID int64
}

func NewRelayService(relayer Relayer, repo RelayRepository, cache RelayStatusCache, metrics *Metrics, chainID int64) *RelayService {
	return &RelayService{
		relayer: relayer,
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		chainID: chainID,
	}
}

// logger wraps the execution context with component info
func (s *RelayService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "relay").Logger()
	return &l
}

// Relay stores a pending record, runs the pipeline and stores the outcome. The
// record is returned even when the run failed; the error is then a *domain.RelayError.
func (s *RelayService) Relay(ctx context.Context, req domain.RelayRequest) (*domain.Relay, error) {
	start := time.Now()

	args, err := json.Marshal(req.Intent.Args)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Arguments are not serializable"))
	}

	relay := &domain.Relay{
		ID:            uuid.New(),
		ChainID:       s.chainID,
		CallerAddress: req.Caller.Hex(),
		TargetAddress: req.Intent.Target.Hex(),
		Signature:     req.Intent.Signature,
		Args:          args,
		Status:        domain.RelayStatusPending,
	}
	if err := s.repo.CreateRelay(ctx, relay); err != nil {
		s.logger(ctx).Error().Err(err).Msg("failed to store relay")
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to store relay"))
	}
	s.cacheRelay(ctx, relay)

	l := zerolog.Ctx(ctx).With().Str("relay_id", relay.ID.String()).Logger()
	ctx = l.WithContext(ctx)

	s.logger(ctx).Info().
		Str("caller", relay.CallerAddress).
		Str("target", relay.TargetAddress).
		Str("function", relay.Signature).
		Msg("relaying intent")

	settlement, runErr := s.relayer.Relay(ctx, req)
	var relayErr *domain.RelayError
	if runErr == nil {
		relay.Settle(settlement)
	} else {
		relayErr = asRelayError(runErr, domain.ErrorKindInvalidOperation)
		relay.Fail(relayErr)
	}

	// the outcome is stored even when the caller went away
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.UpdateRelay(persistCtx, relay); err != nil {
		s.logger(ctx).Error().Err(err).
			Str("status", string(relay.Status)).
			Msg("failed to store relay outcome")
	}
	s.cacheRelay(persistCtx, relay)
	s.metrics.ObserveRelay(relay, time.Since(start))

	if relayErr != nil {
		s.logger(ctx).Warn().
			Str("status", string(relay.Status)).
			Str("kind", string(relayErr.Kind)).
			Dur("elapsed", time.Since(start)).
			Msg("relay finished")
		return relay, relayErr
	}

	s.logger(ctx).Info().
		Str("status", string(relay.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("relay finished")
	return relay, nil
}

// GetRelay reads a relay record, preferring the cache.
func (s *RelayService) GetRelay(ctx context.Context, id uuid.UUID) (*domain.Relay, error) {
	cached, err := s.cache.GetRelay(ctx, id)
	if err != nil {
		s.logger(ctx).Warn().Err(err).Str("relay_id", id.String()).Msg("failed to read relay cache")
	}
	if cached != nil {
		return cached, nil
	}

	relay, err := s.repo.FindRelayByID(ctx, id)
	if errors.Is(err, domain.ErrRelayNotFound) {
		return nil, domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg("Relay not found"))
	}
	if err != nil {
		s.logger(ctx).Error().Err(err).Str("relay_id", id.String()).Msg("failed to load relay")
		return nil, domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to load relay"))
	}

	s.cacheRelay(ctx, relay)
	return relay, nil
}

func (s *RelayService) cacheRelay(ctx context.Context, relay *domain.Relay) {
	if err := s.cache.SetRelay(ctx, relay); err != nil {
		s.logger(ctx).Warn().Err(err).
			Str("relay_id", relay.ID.String()).
			Msg("failed to cache relay")
	}
}
