package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tipvault/relayer/src/domain"
	"gorm.io/gorm"
)

type RelayRepository struct {
	db *gorm.DB
}

func NewRelayRepository(db *gorm.DB) *RelayRepository {
	return &RelayRepository{db: db}
}

func (r *RelayRepository) CreateRelay(ctx context.Context, relay *domain.Relay) error {
	return r.db.WithContext(ctx).Create(relay).Error
}

// UpdateRelay writes the outcome columns of relay.
func (r *RelayRepository) UpdateRelay(ctx context.Context, relay *domain.Relay) error {
	result := r.db.WithContext(ctx).
		Model(relay).
		Select("status", "handle", "transaction_hash", "success", "error_kind", "error_message", "updated_at").
		Updates(relay)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrRelayNotFound
	}
	return nil
}

// FindRelayByID retrieves a specific relay by its ID
func (r *RelayRepository) FindRelayByID(ctx context.Context, id uuid.UUID) (*domain.Relay, error) {
	var relay domain.Relay
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&relay).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRelayNotFound
	}
	if err != nil {
		return nil, err
	}
	return &relay, nil
}

// FindUnresolvedRelays returns unknown relays with a tracking handle, least
// recently checked first, so a full batch of stuck runs cannot hide newer ones.
func (r *RelayRepository) FindUnresolvedRelays(ctx context.Context, limit int) ([]*domain.Relay, error) {
	var relays []*domain.Relay
	err := r.db.WithContext(ctx).
		Where("status = ? AND handle IS NOT NULL", domain.RelayStatusUnknown).
		Order("checked_at ASC NULLS FIRST").
		Order("created_at ASC").
		Limit(limit).
		Find(&relays).Error
	if err != nil {
		return nil, err
	}
	return relays, nil
}

// MarkRelaysChecked stamps checked_at without touching updated_at.
func (r *RelayRepository) MarkRelaysChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Relay{}).
		Where("id IN ?", ids).
		UpdateColumn("checked_at", at).Error
}
