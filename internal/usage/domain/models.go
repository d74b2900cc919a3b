// Package domain contains persistence models and contracts for usage metering.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DailyUsage is the per-calendar-day counter. UserID 0 aggregates all
// anonymous identities for the day.
type DailyUsage struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;default:0;uniqueIndex:ux_daily_user_date,priority:1"`
	Date           string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_daily_user_date,priority:2"`
	PagesProcessed int          `gorm:"not null;default:0"`
	FilesProcessed int          `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

func (DailyUsage) TableName() string { return "daily_usage" }

// MonthlyUsage is the per-calendar-month counter, same aggregation rules.
type MonthlyUsage struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;default:0;uniqueIndex:ux_monthly_user_period,priority:1"`
	Year           int          `gorm:"not null;uniqueIndex:ux_monthly_user_period,priority:2"`
	Month          int          `gorm:"not null;uniqueIndex:ux_monthly_user_period,priority:3"`
	PagesProcessed int          `gorm:"not null;default:0"`
	FilesProcessed int          `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

func (MonthlyUsage) TableName() string { return "monthly_usage" }

// AnonymousUsage tracks anonymous conversions per source IP and day.
// UpdatedAt doubles as the last-conversion timestamp for the 24h gate.
type AnonymousUsage struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	IPAddress      string       `gorm:"type:varchar(45);not null;uniqueIndex:ux_anon_ip_date,priority:1"`
	Date           string       `gorm:"type:varchar(10);not null;uniqueIndex:ux_anon_ip_date,priority:2"`
	PagesProcessed int          `gorm:"not null;default:0"`
	FilesProcessed int          `gorm:"not null;default:0"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

func (AnonymousUsage) TableName() string { return "anonymous_usage" }

// ConversionEvent is the append-only log of completed conversions and the
// ground truth for rolling-window sums. UserID 0 marks anonymous conversions.
type ConversionEvent struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	UserID            snowflake.ID      `gorm:"not null;default:0;index:ix_events_user_created,priority:1"`
	Filename          string            `gorm:"type:text;not null"`
	PagesCount        int               `gorm:"not null"`
	TransactionsCount int               `gorm:"not null;default:0"`
	Metadata          datatypes.JSONMap `gorm:"type:json"`
	CreatedAt         time.Time         `gorm:"not null;index:ix_events_user_created,priority:2"`
}

func (ConversionEvent) TableName() string { return "conversion_events" }

// DateKey formats a timestamp as the calendar-day counter key.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
