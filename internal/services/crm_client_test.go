package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCRMClientPushLead(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
	}{
		{name: "accepted", statuses: []int{http.StatusOK}, wantCalls: 1},
		{name: "retries server errors", statuses: []int{http.StatusBadGateway, http.StatusOK}, wantCalls: 2},
		{name: "gives up after max attempts", statuses: []int{500, 500, 500, 200}, wantErr: true, wantCalls: 3},
		{name: "client error is final", statuses: []int{http.StatusBadRequest, http.StatusOK}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				if got := r.Header.Get("Idempotency-Key"); got != "lead-1" {
					t.Errorf("Idempotency-Key = %q", got)
				}
				var body LeadNotification
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LeadID != "lead-1" {
					t.Errorf("body = %+v, %v", body, err)
				}
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			client := NewCRMClient(srv.URL, time.Second, zap.NewNop())
			client.backoff = time.Millisecond

			err := client.PushLead(context.Background(), LeadNotification{LeadID: "lead-1", TenantID: "t", Channel: "sms"})
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}
