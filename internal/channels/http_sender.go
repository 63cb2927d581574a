package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPSender posts messages to a provider gateway. One instance per channel.
type HTTPSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPSender(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type providerRequest struct {
	Channel        string            `json:"channel"`
	To             string            `json:"to"`
	From           string            `json:"from,omitempty"`
	Message        string            `json:"message"`
	IdempotencyKey string            `json:"idempotency_key"`
	Account        map[string]string `json:"account,omitempty"`
}

type providerResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func (s *HTTPSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body, err := json.Marshal(providerRequest{
		Channel:        string(req.Channel),
		To:             req.To,
		From:           req.SenderIdentity,
		Message:        req.Message,
		IdempotencyKey: req.IdempotencyKey,
		Account:        req.Credentials,
	})
	if err != nil {
		return nil, permanent(CodeMalformedPayload, err)
	}

	url := fmt.Sprintf("%s/messages", s.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(CodeMalformedPayload, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if key := req.Credentials["api_key"]; key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	} else if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, transient(CodeProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var pr providerResponse
	_ = json.Unmarshal(raw, &pr)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if pr.ID == "" {
			s.log.Warn("provider accepted message without id", zap.String("channel", string(req.Channel)))
		}
		return &SendResult{ExternalID: pr.ID}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, transient(CodeRateLimited, statusErr(resp.StatusCode, raw))
	case resp.StatusCode >= 500:
		return nil, transient(CodeProviderUnavailable, statusErr(resp.StatusCode, raw))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, permanent(CodeCredentialsRevoked, statusErr(resp.StatusCode, raw))
	default:
		code := pr.Code
		if code == "" {
			code = CodeInvalidRecipient
		}
		return nil, permanent(code, statusErr(resp.StatusCode, raw))
	}
}

func statusErr(status int, body []byte) error {
	return fmt.Errorf("provider returned %d: %s", status, strings.TrimSpace(string(body)))
}
