package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/extractolabs/conversor/internal/auth/domain"
	"github.com/extractolabs/conversor/internal/clock"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Verifier {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		clock: p.Clock,
	}
}

func (s *Service) Verify(ctx context.Context, rawToken string) (snowflake.ID, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return 0, domain.ErrInvalidToken
	}

	var token domain.AccessToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ?", domain.HashToken(rawToken)).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrInvalidToken
		}
		return 0, err
	}

	if token.ExpiresAt != nil && !token.ExpiresAt.After(s.clock.Now()) {
		return 0, domain.ErrInvalidToken
	}
	return token.UserID, nil
}
