package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/extractolabs/conversor/internal/plan"
)

type linkSubscriptionRequest struct {
	PreapprovalID string `json:"preapprovalId"`
}

// LinkSubscription attaches a processor preapproval to the caller's
// account after verifying it is authorized and maps to a known plan.
func (s *Server) LinkSubscription(c *gin.Context) {
	var req linkSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.subscriptionSvc.Link(c.Request.Context(), currentUserID(c), req.PreapprovalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"plan":               res.Plan,
		"mp_subscription_id": res.SubscriptionID,
	})
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target := plan.Plan(strings.ToLower(strings.TrimSpace(req.Plan)))
	if err := s.subscriptionSvc.ChangePlan(c.Request.Context(), currentUserID(c), target); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "plan": target})
}
