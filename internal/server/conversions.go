package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	conversiondomain "github.com/extractolabs/conversor/internal/conversion/domain"
)

type completeConversionRequest struct {
	Filename          string         `json:"filename"`
	PagesCount        int            `json:"pagesCount"`
	FilesCount        int            `json:"filesCount"`
	TransactionsCount int            `json:"transactionsCount"`
	Metadata          map[string]any `json:"metadata"`
}

// CompleteConversion books a finished conversion against the caller's
// quota. A blocked caller gets 429 along with the decision that blocked
// them, so clients can render the reset time.
func (s *Server) CompleteConversion(c *gin.Context) {
	var req completeConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.conversionSvc.Complete(c.Request.Context(), conversiondomain.CompleteRequest{
		UserID:            currentUserID(c),
		IP:                clientIP(c),
		Filename:          req.Filename,
		PagesCount:        req.PagesCount,
		FilesCount:        req.FilesCount,
		TransactionsCount: req.TransactionsCount,
		Metadata:          req.Metadata,
		RequestKey:        c.GetHeader("X-Request-Id"),
	})
	if err != nil {
		if errors.Is(err, conversiondomain.ErrLimitExceeded) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     "usage limit exceeded",
				"plan":      res.Plan,
				"pagesUsed": res.Decision.PagesUsed,
				"limit":     res.Decision.Limit,
				"limitType": res.Decision.LimitType,
				"resetTime": res.Decision.ResetAt,
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"plan":      res.Plan,
		"pagesUsed": res.Decision.PagesUsed,
		"limit":     res.Decision.Limit,
	})
}

func (s *Server) ConversionHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	events, err := s.conversionSvc.History(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversions": events, "count": len(events)})
}
