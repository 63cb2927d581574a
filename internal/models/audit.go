package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActorTenant = "tenant"
	ActorAdmin  = "admin"
	ActorSystem = "system"
	ActorWorker = "worker"
)

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   *uuid.UUID `json:"tenant_id,omitempty"` // nil for system-wide entries
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorType  string     `json:"actor_type"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
