// Package mercadopago talks to the Mercado Pago preapproval API and
// verifies its webhook signatures.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/config"
	"github.com/extractolabs/conversor/internal/plan"
)

var (
	ErrNotFound      = errors.New("preapproval_not_found")
	ErrUnknownStatus = errors.New("unknown_preapproval_status")
	ErrUnavailable   = errors.New("mercadopago_unavailable")
)

// Preapproval is the authoritative subscription state as reported by the
// processor. Webhook payloads are hints only; state transitions are
// always driven by a fresh fetch of this record.
type Preapproval struct {
	ID                string                  `json:"id"`
	PreapprovalPlanID string                  `json:"preapproval_plan_id"`
	Status            plan.SubscriptionStatus `json:"-"`
	PayerID           int64                   `json:"payer_id"`
	Reason            string                  `json:"reason"`
}

type Client interface {
	GetPreapproval(ctx context.Context, id string) (*Preapproval, error)
}

type ClientParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type httpClient struct {
	baseURL     string
	accessToken string
	log         *zap.Logger
	http        *http.Client
}

func NewClient(p ClientParam) Client {
	return &httpClient{
		baseURL:     strings.TrimRight(p.Config.MPBaseURL, "/"),
		accessToken: p.Config.MPAccessToken,
		log:         p.Log.Named("mercadopago.client"),
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	url := fmt.Sprintf("%s/preapproval/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.log.Warn("preapproval fetch failed",
			zap.String("preapproval_id", id),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var raw struct {
		ID                string `json:"id"`
		PreapprovalPlanID string `json:"preapproval_plan_id"`
		Status            string `json:"status"`
		PayerID           int64  `json:"payer_id"`
		Reason            string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	status, ok := plan.ParseStatus(raw.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, raw.Status)
	}

	return &Preapproval{
		ID:                raw.ID,
		PreapprovalPlanID: raw.PreapprovalPlanID,
		Status:            status,
		PayerID:           raw.PayerID,
		Reason:            raw.Reason,
	}, nil
}
