// Package repository persists usage counters and the conversion event log.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/extractolabs/conversor/internal/clock"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
}

type Repository struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) usagedomain.Repository {
	return &Repository{db: p.DB, genID: p.GenID, clock: p.Clock}
}

// Counter upserts are increment-on-conflict at the store so concurrent
// conversions for the same key never under-count.

func (r *Repository) IncrementDaily(ctx context.Context, userID snowflake.ID, date string, pages, files int) error {
	now := r.clock.Now()
	row := usagedomain.DailyUsage{
		ID:             r.genID.Generate(),
		UserID:         userID,
		Date:           date,
		PagesProcessed: pages,
		FilesProcessed: files,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: incrementAssignments(pages, files, now),
	}).Create(&row).Error
}

func (r *Repository) IncrementMonthly(ctx context.Context, userID snowflake.ID, year, month, pages, files int) error {
	now := r.clock.Now()
	row := usagedomain.MonthlyUsage{
		ID:             r.genID.Generate(),
		UserID:         userID,
		Year:           year,
		Month:          month,
		PagesProcessed: pages,
		FilesProcessed: files,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: incrementAssignments(pages, files, now),
	}).Create(&row).Error
}

func (r *Repository) IncrementAnonymous(ctx context.Context, ip, date string, pages, files int) error {
	now := r.clock.Now()
	row := usagedomain.AnonymousUsage{
		ID:             r.genID.Generate(),
		IPAddress:      ip,
		Date:           date,
		PagesProcessed: pages,
		FilesProcessed: files,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip_address"}, {Name: "date"}},
		DoUpdates: incrementAssignments(pages, files, now),
	}).Create(&row).Error
}

func incrementAssignments(pages, files int, now time.Time) clause.Set {
	return clause.Assignments(map[string]interface{}{
		"pages_processed": gorm.Expr("pages_processed + ?", pages),
		"files_processed": gorm.Expr("files_processed + ?", files),
		"updated_at":      now,
	})
}

func (r *Repository) AppendEvent(ctx context.Context, event *usagedomain.ConversionEvent) error {
	if event == nil {
		return usagedomain.ErrInvalidPages
	}
	if event.ID == 0 {
		event.ID = r.genID.Generate()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.clock.Now()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *Repository) LastEventAt(ctx context.Context, userID snowflake.ID) (*time.Time, error) {
	var event usagedomain.ConversionEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ts := event.CreatedAt
	return &ts, nil
}

func (r *Repository) DailyPages(ctx context.Context, userID snowflake.ID, date string) (int, error) {
	var row usagedomain.DailyUsage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.PagesProcessed, nil
}

func (r *Repository) LatestAnonymous(ctx context.Context, ip string) (*usagedomain.AnonymousUsage, error) {
	var row usagedomain.AnonymousUsage
	err := r.db.WithContext(ctx).
		Where("ip_address = ?", ip).
		Order("date DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) WindowTotals(ctx context.Context, userID snowflake.ID, since time.Time) (int, *time.Time, error) {
	type aggregate struct {
		Pages  int
		Oldest *time.Time
	}
	var agg aggregate
	err := r.db.WithContext(ctx).
		Model(&usagedomain.ConversionEvent{}).
		Select("COALESCE(SUM(pages_count), 0) AS pages, MIN(created_at) AS oldest").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&agg).Error
	if err != nil {
		return 0, nil, err
	}
	return agg.Pages, agg.Oldest, nil
}

func (r *Repository) ListEvents(ctx context.Context, userID snowflake.ID, limit int) ([]usagedomain.ConversionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []usagedomain.ConversionEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
