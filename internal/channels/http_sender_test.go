package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/models"
	"go.uber.org/zap"
)

func TestHTTPSenderSuccess(t *testing.T) {
	var got providerRequest
	var auth, idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		idem = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"prov-1"}`))
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL+"/", "", time.Second, zap.NewNop())
	res, err := s.Send(context.Background(), SendRequest{
		Channel:        models.ChannelSMS,
		To:             "+5511999990000",
		Message:        "hi",
		IdempotencyKey: "c:a:sms",
		Credentials:    credentials.Credentials{"api_key": "tenant-key"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExternalID != "prov-1" {
		t.Errorf("external id = %q", res.ExternalID)
	}
	if auth != "Bearer tenant-key" || idem != "c:a:sms" {
		t.Errorf("auth=%q idem=%q", auth, idem)
	}
	if got.To != "+5511999990000" || got.Channel != "sms" {
		t.Errorf("request = %+v", got)
	}
}

func TestHTTPSenderClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
	}{
		{"rate limited", 429, `{}`, CodeRateLimited, true},
		{"server error", 503, `oops`, CodeProviderUnavailable, true},
		{"unauthorized", 401, `{}`, CodeCredentialsRevoked, false},
		{"forbidden", 403, `{}`, CodeCredentialsRevoked, false},
		{"bad number", 400, `{"error":"bad number"}`, CodeInvalidRecipient, false},
		{"provider code", 422, `{"code":"malformed_payload"}`, CodeMalformedPayload, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := NewHTTPSender(srv.URL, "platform", time.Second, zap.NewNop())
			_, err := s.Send(context.Background(), SendRequest{Channel: models.ChannelSMS, To: "+1", Message: "m"})
			if err == nil {
				t.Fatal("expected error")
			}
			if Code(err) != tt.code {
				t.Errorf("code = %q, want %q", Code(err), tt.code)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestHTTPSenderNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	s := NewHTTPSender(url, "", 200*time.Millisecond, zap.NewNop())
	_, err := s.Send(context.Background(), SendRequest{Channel: models.ChannelWhatsApp, To: "+1", Message: "m"})
	if err == nil || !IsRetryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
}
