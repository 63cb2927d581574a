package events

import "context"

// StreamHunt carries run, job and lead notifications for the WS hub and the lead bridge.
const StreamHunt = "events:hunt"

// Event types
const (
	EventRunCompleted      = "hunt_run_completed"
	EventCampaignProcessed = "campaign_processed"
	EventJobCompleted      = "dispatch_job_completed"
	EventJobFailed         = "dispatch_job_failed"
	EventLeadCreated       = "lead_created"
)

type Event struct {
	Type     string         `json:"type"`
	TenantID string         `json:"tenant_id,omitempty"` // empty = broadcast
	Payload  map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops events; used when no Redis is wired, e.g. in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
