package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ads-hunter/backend/internal/models"
	"go.uber.org/zap"
)

// CRMClient posts new leads to a tenant-agnostic CRM webhook.
type CRMClient struct {
	webhookURL  string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

func NewCRMClient(webhookURL string, timeout time.Duration, log *zap.Logger) *CRMClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CRMClient{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxAttempts: 3,
		backoff:     time.Second,
		log:         log,
	}
}

type LeadNotification struct {
	LeadID     string     `json:"lead_id"`
	TenantID   string     `json:"tenant_id"`
	CampaignID string     `json:"campaign_id,omitempty"`
	Channel    string     `json:"channel"`
	Ad         *models.Ad `json:"ad,omitempty"`
}

// PushLead delivers n, retrying 5xx and transport errors. The lead id doubles
// as the Idempotency-Key so the CRM can drop redeliveries.
func (c *CRMClient) PushLead(ctx context.Context, n LeadNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	delay := c.backoff
	for attempt := 1; ; attempt++ {
		retry, err := c.post(ctx, body, n.LeadID)
		if err == nil {
			return nil
		}
		if !retry || attempt >= c.maxAttempts {
			return err
		}
		c.log.Warn("crm webhook failed, retrying",
			zap.String("lead_id", n.LeadID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *CRMClient) post(ctx context.Context, body []byte, leadID string) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", leadID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("crm webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			fmt.Errorf("crm webhook returned %d: %s", resp.StatusCode, string(b))
	}
	return false, nil
}
