package mercadopago

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/config"
	"github.com/extractolabs/conversor/internal/plan"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientParam{
		Config: config.Config{MPBaseURL: srv.URL, MPAccessToken: "token-1"},
		Log:    zap.NewNop(),
	})
}

func TestGetPreapproval(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/preapproval/presub-1", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"presub-1","preapproval_plan_id":"plan-pro","status":"authorized","payer_id":77,"reason":"Pro"}`))
	})

	pre, err := client.GetPreapproval(context.Background(), "presub-1")
	assert.NoError(t, err)
	assert.Equal(t, "presub-1", pre.ID)
	assert.Equal(t, "plan-pro", pre.PreapprovalPlanID)
	assert.Equal(t, plan.StatusAuthorized, pre.Status)
	assert.Equal(t, int64(77), pre.PayerID)
}

func TestGetPreapprovalUnknownStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"presub-1","status":"on_hold"}`))
	})

	_, err := client.GetPreapproval(context.Background(), "presub-1")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestGetPreapprovalNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetPreapproval(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetPreapproval(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPreapprovalServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetPreapproval(context.Background(), "presub-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
