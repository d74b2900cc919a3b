package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckSubscriptions is the pull half of reconciliation, invoked by an
// external scheduler with the shared CRON secret. Per-user details are
// only included outside production.
func (s *Server) CheckSubscriptions(c *gin.Context) {
	if !s.cronAuthorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summary, err := s.subscriptionSvc.PollAll(c.Request.Context())
	if err != nil {
		s.log.Error("subscription poll failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "poll failed"})
		return
	}

	if summary.Checked == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "no subscriptions to check", "checked": 0})
		return
	}

	resp := gin.H{
		"message": "check completed",
		"checked": summary.Checked,
		"updated": summary.Updated,
		"errors":  summary.Errors,
	}
	if !s.cfg.IsProduction() {
		resp["details"] = summary.Details
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) cronAuthorized(c *gin.Context) bool {
	secret := s.cfg.CronSecret
	if secret == "" {
		return false
	}
	token := bearerToken(c)
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
