package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/extractolabs/conversor/internal/plan"
)

var (
	ErrInvalidPages    = errors.New("invalid_pages_count")
	ErrInvalidIdentity = errors.New("invalid_identity")
)

// Identity is who consumed quota: a registered user or, when UserID is 0,
// an anonymous caller tracked by source IP.
type Identity struct {
	UserID snowflake.ID
	IP     string
}

func (i Identity) Anonymous() bool { return i.UserID == 0 }

// LimitType says which window the reported limit belongs to.
type LimitType string

const (
	LimitDaily   LimitType = "daily"
	LimitMonthly LimitType = "monthly"
)

// Decision is the evaluator's verdict for one identity at one instant.
// Permissive marks the explicit fail-open outcome taken when the backing
// store could not be read; such decisions always allow with zero usage.
type Decision struct {
	CanProcess bool
	PagesUsed  int
	Limit      int
	LimitType  LimitType
	ResetAt    *time.Time
	Permissive bool
}

// RecordRequest captures one completed conversion.
type RecordRequest struct {
	Identity          Identity
	PagesCount        int
	FilesCount        int
	Filename          string
	TransactionsCount int
	Metadata          map[string]any
}

// Service meters usage: Evaluate answers "can this identity process more
// pages right now", Record books a completed conversion against all windows.
type Service interface {
	// Evaluate applies the window policy for the effective plan. memberSince
	// anchors the paid reset fallback when no events exist yet.
	Evaluate(ctx context.Context, identity Identity, effective plan.Plan, memberSince time.Time) Decision

	// Record upserts the period counters and appends the conversion event.
	// Best-effort: every write is attempted; the joined error reports any
	// that failed. Additive per call; callers must invoke at most once per
	// completed conversion.
	Record(ctx context.Context, req RecordRequest) error

	// History lists the user's most recent conversion events.
	History(ctx context.Context, userID snowflake.ID, limit int) ([]ConversionEvent, error)
}

// Repository is the storage contract behind the evaluator and recorder.
type Repository interface {
	IncrementDaily(ctx context.Context, userID snowflake.ID, date string, pages, files int) error
	IncrementMonthly(ctx context.Context, userID snowflake.ID, year, month, pages, files int) error
	IncrementAnonymous(ctx context.Context, ip, date string, pages, files int) error
	AppendEvent(ctx context.Context, event *ConversionEvent) error

	// LastEventAt returns the newest conversion timestamp for the user, or
	// nil when none exists.
	LastEventAt(ctx context.Context, userID snowflake.ID) (*time.Time, error)
	// DailyPages returns the user's counter for one calendar day.
	DailyPages(ctx context.Context, userID snowflake.ID, date string) (int, error)
	// LatestAnonymous returns the most recent anonymous row for the IP.
	LatestAnonymous(ctx context.Context, ip string) (*AnonymousUsage, error)
	// WindowTotals sums event pages with created_at >= since (inclusive at
	// the boundary) and reports the oldest qualifying event time.
	WindowTotals(ctx context.Context, userID snowflake.ID, since time.Time) (int, *time.Time, error)
	ListEvents(ctx context.Context, userID snowflake.ID, limit int) ([]ConversionEvent, error)
}
