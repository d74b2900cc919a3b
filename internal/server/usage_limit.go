package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/extractolabs/conversor/internal/plan"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

type usageLimitResponse struct {
	CanProcess         bool                  `json:"canProcess"`
	PagesUsed          int                   `json:"pagesUsed"`
	Limit              int                   `json:"limit"`
	LimitType          usagedomain.LimitType `json:"limitType"`
	ResetTime          *time.Time            `json:"resetTime"`
	Plan               plan.Plan             `json:"plan"`
	SubscriptionLapsed *bool                 `json:"subscriptionLapsed,omitempty"`
}

// CheckUsageLimit reports the caller's remaining allowance without
// consuming any of it.
func (s *Server) CheckUsageLimit(c *gin.Context) {
	userID := currentUserID(c)

	res, err := s.entitlementSvc.Check(c.Request.Context(), userID, clientIP(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := usageLimitResponse{
		CanProcess: res.Decision.CanProcess,
		PagesUsed:  res.Decision.PagesUsed,
		Limit:      res.Decision.Limit,
		LimitType:  res.Decision.LimitType,
		ResetTime:  res.Decision.ResetAt,
		Plan:       res.Plan,
	}
	if userID != 0 {
		lapsed := res.SubscriptionLapsed
		resp.SubscriptionLapsed = &lapsed
	}
	c.JSON(http.StatusOK, resp)
}
