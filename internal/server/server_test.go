package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	authdomain "github.com/extractolabs/conversor/internal/auth/domain"
	"github.com/extractolabs/conversor/internal/config"
	conversiondomain "github.com/extractolabs/conversor/internal/conversion/domain"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/plan"
	subscriptiondomain "github.com/extractolabs/conversor/internal/subscription/domain"
	usagedomain "github.com/extractolabs/conversor/internal/usage/domain"
)

type fakeVerifier struct {
	userID snowflake.ID
}

func (f *fakeVerifier) Verify(ctx context.Context, rawToken string) (snowflake.ID, error) {
	if rawToken == "valid-token" && f.userID != 0 {
		return f.userID, nil
	}
	return 0, authdomain.ErrInvalidToken
}

type fakeEntitlementService struct {
	result entdomain.CheckResult
}

func (f *fakeEntitlementService) Check(ctx context.Context, userID snowflake.ID, ip string) (entdomain.CheckResult, error) {
	return f.result, nil
}

func (f *fakeEntitlementService) Ensure(ctx context.Context, userID snowflake.ID, email string) (*entdomain.UserEntitlement, error) {
	return nil, nil
}

func (f *fakeEntitlementService) Get(ctx context.Context, userID snowflake.ID) (*entdomain.UserEntitlement, error) {
	return nil, entdomain.ErrNotFound
}

type fakeSubscriptionService struct {
	reconcileErr   error
	reconcileCalls []string
	summary        subscriptiondomain.Summary
}

func (f *fakeSubscriptionService) Reconcile(ctx context.Context, preapprovalID string) error {
	f.reconcileCalls = append(f.reconcileCalls, preapprovalID)
	return f.reconcileErr
}

func (f *fakeSubscriptionService) PollAll(ctx context.Context) (subscriptiondomain.Summary, error) {
	return f.summary, nil
}

func (f *fakeSubscriptionService) Link(ctx context.Context, userID snowflake.ID, preapprovalID string) (subscriptiondomain.LinkResult, error) {
	return subscriptiondomain.LinkResult{Plan: plan.PlanPro, SubscriptionID: preapprovalID}, nil
}

func (f *fakeSubscriptionService) ChangePlan(ctx context.Context, userID snowflake.ID, target plan.Plan) error {
	return nil
}

type fakeConversionService struct {
	result conversiondomain.CompleteResult
	err    error
}

func (f *fakeConversionService) Complete(ctx context.Context, req conversiondomain.CompleteRequest) (conversiondomain.CompleteResult, error) {
	return f.result, f.err
}

func (f *fakeConversionService) History(ctx context.Context, userID snowflake.ID, limit int) ([]usagedomain.ConversionEvent, error) {
	return nil, nil
}

type harness struct {
	engine       *gin.Engine
	subscription *fakeSubscriptionService
	conversion   *fakeConversionService
	entitlement  *fakeEntitlementService
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sub := &fakeSubscriptionService{}
	conv := &fakeConversionService{}
	ent := &fakeEntitlementService{}

	engine := NewEngine(nil)
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             zap.NewNop(),
		Verifier:        &fakeVerifier{userID: 7},
		EntitlementSvc:  ent,
		SubscriptionSvc: sub,
		ConversionSvc:   conv,
	})
	return &harness{engine: engine, subscription: sub, conversion: conv, entitlement: ent}
}

func signWebhook(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	return fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(h *harness, secret, eventType, dataID string, validSig bool) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{
		"type": eventType,
		"data": map[string]any{"id": dataID},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/mercadopago", bytes.NewReader(body))
	req.Header.Set("x-request-id", "req-1")
	sig := signWebhook(secret, dataID, "req-1", "1719792000")
	if !validSig {
		sig = "ts=1719792000,v1=deadbeef"
	}
	req.Header.Set("x-signature", sig)

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t, config.Config{MPWebhookSecret: "whsec"})

	w := postWebhook(h, "whsec", "subscription_preapproval", "presub-1", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, h.subscription.reconcileCalls)
}

func TestWebhookAcknowledgesIrrelevantEvents(t *testing.T) {
	h := newHarness(t, config.Config{MPWebhookSecret: "whsec"})

	w := postWebhook(h, "whsec", "payment.created", "pay-9", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.subscription.reconcileCalls)
}

func TestWebhookAcknowledgesUnlinkedSubscription(t *testing.T) {
	h := newHarness(t, config.Config{MPWebhookSecret: "whsec"})
	h.subscription.reconcileErr = subscriptiondomain.ErrNotLinked

	w := postWebhook(h, "whsec", "subscription_preapproval", "presub-ghost", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"presub-ghost"}, h.subscription.reconcileCalls)
}

func TestWebhookRetriesOnStoreFailure(t *testing.T) {
	h := newHarness(t, config.Config{MPWebhookSecret: "whsec"})
	h.subscription.reconcileErr = fmt.Errorf("db down")

	w := postWebhook(h, "whsec", "subscription_preapproval", "presub-1", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCronRequiresSecret(t *testing.T) {
	h := newHarness(t, config.Config{CronSecret: "cron-secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/cron/check-subscriptions", nil)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/cron/check-subscriptions", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCronHidesDetailsInProduction(t *testing.T) {
	summary := subscriptiondomain.Summary{
		Checked: 2,
		Updated: 1,
		Details: []subscriptiondomain.Detail{{SubscriptionID: "sub-a"}},
	}

	h := newHarness(t, config.Config{CronSecret: "cs", Environment: "production"})
	h.subscription.summary = summary

	req := httptest.NewRequest(http.MethodGet, "/api/cron/check-subscriptions", nil)
	req.Header.Set("Authorization", "Bearer cs")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "details")
	assert.EqualValues(t, 2, resp["checked"])

	h = newHarness(t, config.Config{CronSecret: "cs", Environment: "development"})
	h.subscription.summary = summary

	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "details")
}

func TestCheckUsageLimitAnonymous(t *testing.T) {
	h := newHarness(t, config.Config{})
	reset := time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC)
	h.entitlement.result = entdomain.CheckResult{
		Plan: plan.PlanAnonymous,
		Decision: usagedomain.Decision{
			CanProcess: false,
			PagesUsed:  1,
			Limit:      1,
			LimitType:  usagedomain.LimitDaily,
			ResetAt:    &reset,
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/usage/limit", nil)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["canProcess"])
	assert.Equal(t, "anonymous", resp["plan"])
	assert.NotContains(t, resp, "subscriptionLapsed")
}

func TestCompleteConversionBlockedReturns429(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.conversion.err = conversiondomain.ErrLimitExceeded
	h.conversion.result = conversiondomain.CompleteResult{
		Plan:     plan.PlanFree,
		Decision: usagedomain.Decision{PagesUsed: 3, Limit: 3, LimitType: usagedomain.LimitDaily},
	}

	body, _ := json.Marshal(map[string]any{"filename": "s.pdf", "pagesCount": 2})
	req := httptest.NewRequest(http.MethodPost, "/api/conversions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 3, resp["limit"])
}

func TestConversionHistoryRequiresAuth(t *testing.T) {
	h := newHarness(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversions", nil)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/conversions", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
