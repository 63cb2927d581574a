package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ads-hunter/backend/internal/channels"
	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manual-send rejection codes. They are returned synchronously, before anything is enqueued.
const (
	CodeValidationFailed    = "validation_failed"
	CodeInvalidChannel      = "invalid_channel"
	CodeInvalidRecipient    = channels.CodeInvalidRecipient
	CodeCredentialsMissing  = channels.CodeCredentialsMissing
	CodeCredentialsInvalid  = "credentials_invalid"
	CodeChannelDisabled     = "channel_disabled"
	CodeSenderMissing       = "sender_identity_missing"
	CodeMessageMissing      = "message_missing"
	CodeTemplateNotFound    = "template_not_found"
	CodeCampaignRequired    = "campaign_required"
	CodeInsufficientCredits = ReasonInsufficientCredits
	CodeReferenceRefunded   = ReasonReferenceRefunded
)

// ValidationError rejects a manual send. Fields carries per-field validator tags.
type ValidationError struct {
	Code    string
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

func reject(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

type ManualSend struct {
	TenantID       uuid.UUID
	Channel        string            `validate:"required,oneof=whatsapp sms ringless_voice"`
	RecipientPhone string            `validate:"required,max=32"`
	Message        string            `validate:"required_without=TemplateID,max=1600"`
	TemplateID     *uuid.UUID        `validate:"required_without=Message"`
	Vars           map[string]string `validate:"max=32"`
	CampaignID     *uuid.UUID
	AdID           *uuid.UUID
	IdempotencyKey string `validate:"omitempty,max=200"`
}

type ManualSendResult struct {
	JobID          string `json:"job_id"`
	Queue          string `json:"queue"`
	IdempotencyKey string `json:"idempotency_key"`
}

type DispatchConfig struct {
	Policy        queue.RetryPolicy
	DefaultRegion string
}

// DispatchService composes messages and places dispatch jobs on the channel queues.
type DispatchService struct {
	queue     JobQueue
	settings  SettingsStore
	templates TemplateStore
	ledger    *LedgerService
	box       *credentials.Box
	renderer  Renderer
	validate  *validator.Validate
	cfg       DispatchConfig
	log       *zap.Logger
}

func NewDispatchService(
	q JobQueue,
	settings SettingsStore,
	templates TemplateStore,
	ledger *LedgerService,
	box *credentials.Box,
	cfg DispatchConfig,
	log *zap.Logger,
) *DispatchService {
	return &DispatchService{
		queue:     q,
		settings:  settings,
		templates: templates,
		ledger:    ledger,
		box:       box,
		validate:  validator.New(),
		cfg:       cfg,
		log:       log,
	}
}

// DefaultTemplate returns the tenant's default template for channel, or nil when none is set.
func (s *DispatchService) DefaultTemplate(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.MessageTemplate, error) {
	tpl, err := s.templates.GetDefault(ctx, tenantID, channel)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return tpl, err
}

func (s *DispatchService) Render(body string, vars map[string]string) string {
	return s.renderer.Render(body, vars)
}

func (s *DispatchService) Normalize(phone string) (string, error) {
	return NormalizePhone(phone, s.cfg.DefaultRegion)
}

// Enqueue places job on its channel queue. The job's idempotency key makes repeats a no-op.
func (s *DispatchService) Enqueue(ctx context.Context, job *models.DispatchJob) (string, error) {
	payload, err := job.Encode()
	if err != nil {
		return "", err
	}
	return s.queue.Enqueue(ctx, job.Channel.QueueName(), payload, job.IdempotencyKey, s.cfg.Policy)
}

// ManualSend validates everything a worker would later trip over, then enqueues.
func (s *DispatchService) ManualSend(ctx context.Context, req ManualSend) (*ManualSendResult, error) {
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			if _, bad := fields["Channel"]; bad {
				return nil, reject(CodeInvalidChannel, "unsupported channel %q", req.Channel)
			}
			if _, bad := fields["RecipientPhone"]; bad {
				return nil, reject(CodeInvalidRecipient, "recipient phone is required")
			}
			if fields["Message"] == "required_without" {
				return nil, reject(CodeMessageMissing, "message or template_id is required")
			}
			return nil, &ValidationError{Code: CodeValidationFailed, Message: "invalid request", Fields: fields}
		}
		return nil, err
	}

	channel, err := models.ParseChannel(req.Channel)
	if err != nil {
		return nil, reject(CodeInvalidChannel, "unsupported channel %q", req.Channel)
	}

	phone, err := s.Normalize(req.RecipientPhone)
	if err != nil {
		return nil, reject(CodeInvalidRecipient, "recipient %q is not a valid phone number", req.RecipientPhone)
	}

	settings, err := s.settings.Get(ctx, req.TenantID, channel)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && len(settings.SealedCredentials) == 0) {
		return nil, reject(CodeCredentialsMissing, "no %s credentials configured", channel)
	}
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return nil, reject(CodeChannelDisabled, "%s is disabled for this tenant", channel)
	}
	if channel.RequiresSender() && (settings.SenderIdentity == nil || *settings.SenderIdentity == "") {
		return nil, reject(CodeSenderMissing, "%s requires a sender identity", channel)
	}
	if _, err := s.box.Open(settings.SealedCredentials); err != nil {
		s.log.Warn("stored credentials do not open",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return nil, reject(CodeCredentialsInvalid, "stored %s credentials cannot be decrypted", channel)
	}

	message := req.Message
	if req.TemplateID != nil {
		tpl, err := s.templates.GetByID(ctx, req.TenantID, *req.TemplateID)
		if errors.Is(err, repositories.ErrNotFound) || (err == nil && tpl.Channel != channel) {
			return nil, reject(CodeTemplateNotFound, "template %s not found for %s", req.TemplateID, channel)
		}
		if err != nil {
			return nil, err
		}
		message = s.renderer.Render(tpl.Body, req.Vars)
	}
	if message == "" {
		return nil, reject(CodeMessageMissing, "message renders empty")
	}

	callerKey := req.IdempotencyKey
	if callerKey == "" {
		callerKey = uuid.NewString()
	}
	key := manualKey(req.TenantID, callerKey)

	job := &models.DispatchJob{
		IdempotencyKey: key,
		Channel:        channel,
		RecipientPhone: phone,
		Message:        message,
		SenderIdentity: settings.SenderIdentity,
		Metadata:       models.DispatchMetadata{CampaignID: req.CampaignID, TenantID: req.TenantID, AdID: req.AdID},
		Manual:         true,
	}

	// Metered sends are always paid from a campaign budget.
	if channel.Metered() {
		if req.CampaignID == nil {
			return nil, reject(CodeCampaignRequired, "%s sends are paid from a campaign budget", channel)
		}
		res, err := s.ledger.Consume(ctx, models.BudgetKey{TenantID: req.TenantID, CampaignID: *req.CampaignID, Channel: channel}, &key)
		if err != nil {
			return nil, err
		}
		if res.Reason == ReasonReferenceRefunded {
			return nil, reject(CodeReferenceRefunded, "idempotency key %q was refunded; send with a new key", callerKey)
		}
		if !res.OK {
			return nil, reject(CodeInsufficientCredits, "campaign budget refused: %s", res.Reason)
		}
		job.TransactionID = &res.Transaction.ID
	}

	jobID, err := s.Enqueue(ctx, job)
	if err != nil {
		if job.TransactionID != nil {
			s.log.Error("manual send enqueue failed after consume",
				zap.String("reference", key),
				zap.String("transaction_id", job.TransactionID.String()),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("enqueue manual send: %w", err)
	}

	s.log.Info("manual send enqueued",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("channel", string(channel)),
		zap.String("job_id", jobID),
	)
	return &ManualSendResult{JobID: jobID, Queue: channel.QueueName(), IdempotencyKey: callerKey}, nil
}

// manualKey scopes a caller-chosen key to its tenant. The result is both the
// queue dedup key and the ledger reference, and neither may collide across tenants.
func manualKey(tenantID uuid.UUID, key string) string {
	return "manual:" + tenantID.String() + ":" + key
}

// JobStatus reports a dispatch job to the tenant that owns it. Jobs of other
// tenants are indistinguishable from missing ones.
func (s *DispatchService) JobStatus(ctx context.Context, tenantID uuid.UUID, channel models.Channel, jobID string) (*models.JobStatus, error) {
	st, err := s.queue.Status(ctx, channel.QueueName(), jobID)
	if err != nil {
		return nil, err
	}
	job, err := models.DecodeDispatchJob(st.Payload)
	if err != nil || job.Metadata.TenantID != tenantID {
		return nil, queue.ErrJobNotFound
	}
	return st, nil
}
