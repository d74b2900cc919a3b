package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/entitlement/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Clock clock.Clock
}

type Repository struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(p Params) domain.Repository {
	return &Repository{db: p.DB, clock: p.Clock}
}

func (r *Repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.UserEntitlement, error) {
	var row domain.UserEntitlement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.UserEntitlement, error) {
	var row domain.UserEntitlement
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.UserEntitlement, error) {
	var row domain.UserEntitlement
	err := r.db.WithContext(ctx).
		Where("mp_subscription_id = ?", subscriptionID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) ListWithSubscription(ctx context.Context, limit int) ([]domain.UserEntitlement, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []domain.UserEntitlement
	err := r.db.WithContext(ctx).
		Where("mp_subscription_id IS NOT NULL").
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) Create(ctx context.Context, entitlement *domain.UserEntitlement) error {
	now := r.clock.Now()
	if entitlement.CreatedAt.IsZero() {
		entitlement.CreatedAt = now
	}
	entitlement.UpdatedAt = now
	return r.db.WithContext(ctx).Create(entitlement).Error
}

func (r *Repository) Update(ctx context.Context, entitlement *domain.UserEntitlement) error {
	entitlement.UpdatedAt = r.clock.Now()
	return r.db.WithContext(ctx).Save(entitlement).Error
}
