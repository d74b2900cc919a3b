// Package domain defines the conversion completion flow: the gate that
// decides whether a caller may convert, and the booking of a finished
// conversion against the usage ledger.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

var (
	ErrLimitExceeded    = errors.New("usage_limit_exceeded")
	ErrDuplicateRequest = errors.New("duplicate_conversion_request")
	ErrThrottled        = errors.New("too_many_requests")
)

// CompleteRequest reports a conversion that already succeeded. The
// engine never performs the PDF extraction itself; it only meters it.
type CompleteRequest struct {
	UserID            snowflake.ID
	IP                string
	Filename          string
	PagesCount        int
	FilesCount        int
	TransactionsCount int
	Metadata          map[string]any

	// RequestKey deduplicates HTTP retries of the same completion call.
	// Optional; empty disables the duplicate guard.
	RequestKey string
}

// CompleteResult echoes the usage standing after booking.
type CompleteResult struct {
	Plan     plan.Plan
	Decision usagedomain.Decision
}

type Service interface {
	// Complete books one finished conversion. ErrLimitExceeded carries
	// the blocking decision; the conversion itself is the caller's
	// responsibility and is assumed delivered.
	Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error)

	// History lists the caller's recent conversions.
	History(ctx context.Context, userID snowflake.ID, limit int) ([]usagedomain.ConversionEvent, error)
}
