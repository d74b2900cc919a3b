package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/mercadopago"
	subscriptiondomain "github.com/extractolabs/conversor/internal/subscription/domain"
)

const eventTypeSubscription = "subscription_preapproval"

type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// MercadoPagoWebhook handles subscription notifications. The processor
// retries on anything but 2xx, so the response codes are deliberate:
// 401 rejects bad signatures, 200 acknowledges events we do not act on
// (other event types, unknown subscription ids), 500 asks for a retry
// when our own store or the status fetch failed.
func (s *Server) MercadoPagoWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := mercadopago.VerifySignature(
		s.cfg.MPWebhookSecret,
		c.GetHeader("x-signature"),
		payload.Data.ID,
		c.GetHeader("x-request-id"),
	); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("event_type", payload.Type))
		s.countWebhook("invalid_signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if payload.Type != eventTypeSubscription {
		s.countWebhook("ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if payload.Data.ID == "" {
		s.countWebhook("missing_id")
		c.JSON(http.StatusBadRequest, gin.H{"error": "preapproval id missing"})
		return
	}

	err = s.subscriptionSvc.Reconcile(c.Request.Context(), payload.Data.ID)
	switch {
	case err == nil:
		s.countWebhook("applied")
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, subscriptiondomain.ErrNotLinked):
		// Possibly another system's subscription. Acknowledge so the
		// processor stops retrying.
		s.log.Warn("webhook for unlinked subscription", zap.String("preapproval_id", payload.Data.ID))
		s.countWebhook("not_linked")
		c.JSON(http.StatusOK, gin.H{"received": true})
	default:
		s.log.Error("webhook reconcile failed",
			zap.String("preapproval_id", payload.Data.ID),
			zap.Error(err),
		)
		s.countWebhook("error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
	}
}

func (s *Server) countWebhook(result string) {
	if s.obsMetrics != nil {
		s.obsMetrics.IncWebhookEvent(result)
	}
}
