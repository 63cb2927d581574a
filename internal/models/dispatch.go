package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job states as reported by the dispatch queue.
const (
	JobStateQueued    = "queued"
	JobStateActive    = "active"
	JobStateDelayed   = "delayed"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)

type DispatchMetadata struct {
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	AdID       *uuid.UUID `json:"ad_id,omitempty"`
}

// DispatchJob is the payload carried by a channel queue.
type DispatchJob struct {
	IdempotencyKey string           `json:"idempotency_key"`
	Channel        Channel          `json:"channel"`
	RecipientPhone string           `json:"recipient_phone"`
	Message        string           `json:"message"`
	SenderIdentity *string          `json:"sender_identity,omitempty"`
	Metadata       DispatchMetadata `json:"metadata"`
	TransactionID  *uuid.UUID       `json:"transaction_id,omitempty"`
	Manual         bool             `json:"manual,omitempty"`
}

// IdempotencyKey derives the job key for one automated contact.
func IdempotencyKey(campaignID, adID uuid.UUID, channel Channel) string {
	return fmt.Sprintf("%s:%s:%s", campaignID, adID, channel)
}

func (j *DispatchJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

func DecodeDispatchJob(data []byte) (*DispatchJob, error) {
	var j DispatchJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	if !j.Channel.Valid() || j.RecipientPhone == "" || j.Message == "" {
		return nil, fmt.Errorf("malformed dispatch job %q", j.IdempotencyKey)
	}
	return &j, nil
}

// DispatchResult is stored as the job result on success.
type DispatchResult struct {
	ExternalID  string    `json:"external_id"`
	SentAt      time.Time `json:"sent_at"`
	LeadCreated bool      `json:"lead_created"`
}

type JobStatus struct {
	ID           string          `json:"job_id"`
	Queue        string          `json:"queue"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	Payload      []byte          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
