package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	authdomain "github.com/extractolabs/conversor/internal/auth/domain"
	conversiondomain "github.com/extractolabs/conversor/internal/conversion/domain"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/mercadopago"
	subscriptiondomain "github.com/extractolabs/conversor/internal/subscription/domain"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, authdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, entdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "entitlement not found"}
	case errors.Is(err, conversiondomain.ErrThrottled):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, conversiondomain.ErrDuplicateRequest):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conversion already being recorded"}
	case errors.Is(err, subscriptiondomain.ErrAlreadyLinked):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "subscription linked to another account"}
	case errors.Is(err, subscriptiondomain.ErrNotAuthorized):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "subscription is not active"}
	case errors.Is(err, subscriptiondomain.ErrUnknownPlan):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "subscription plan not recognized"}
	case errors.Is(err, subscriptiondomain.ErrMissingID):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "preapprovalId is required"}
	case errors.Is(err, subscriptiondomain.ErrNoSubscription):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "no subscription on file"}
	case errors.Is(err, mercadopago.ErrNotFound), errors.Is(err, mercadopago.ErrUnavailable), errors.Is(err, mercadopago.ErrUnknownStatus):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "could not verify subscription with the payment provider"}
	case errors.Is(err, usagedomain.ErrInvalidPages), errors.Is(err, usagedomain.ErrInvalidIdentity),
		errors.Is(err, entdomain.ErrInvalidEmail), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
