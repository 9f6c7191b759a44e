package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/tipvault/relayer/src/domain"
)

const relayCacheTTL = 24 * time.Hour

// RelayCacheRepository keeps the latest state of recent relays in Redis.
type RelayCacheRepository struct {
	redis  *redis.Client
	prefix string
}

func NewRelayCacheRepository(redis *redis.Client, prefix string) *RelayCacheRepository {
	return &RelayCacheRepository{
		redis:  redis,
		prefix: prefix + ":status",
	}
}

func (r *RelayCacheRepository) key(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

// SetRelay stores relay with a 24-hour expiration
func (r *RelayCacheRepository) SetRelay(ctx context.Context, relay *domain.Relay) error {
	data, err := json.Marshal(relay)
	if err != nil {
		return fmt.Errorf("failed to marshal relay: %w", err)
	}
	return r.redis.Set(ctx, r.key(relay.ID), data, relayCacheTTL).Err()
}

// GetRelay returns (nil, nil) when id is not cached.
func (r *RelayCacheRepository) GetRelay(ctx context.Context, id uuid.UUID) (*domain.Relay, error) {
	data, err := r.redis.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var relay domain.Relay
	if err := json.Unmarshal(data, &relay); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relay: %w", err)
	}
	return &relay, nil
}
