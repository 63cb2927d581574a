package workers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ads-hunter/backend/internal/channels"
	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type channelWorker struct {
	pool    *Pool
	channel models.Channel
	sender  channels.Sender
	limiter *rate.Limiter
	log     *zap.Logger
}

func (w *channelWorker) handle(ctx context.Context, job *queue.Job) (result []byte, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "dispatch.send")
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("channel", string(w.channel)),
		attribute.Int("job.attempt", job.Attempt),
	)
	defer func() { telemetry.End(span, err) }()

	d, err := models.DecodeDispatchJob(job.Payload)
	if err != nil {
		return nil, queue.Permanent(channels.PermanentError(channels.CodeMalformedPayload, err))
	}

	defer func() {
		if err != nil && (queue.IsPermanent(err) || job.Attempt >= job.MaxAttempts) {
			w.failed(ctx, job, d, err)
		}
	}()

	creds, err := w.credentials(ctx, d)
	if err != nil {
		return nil, err
	}
	_ = job.Progress(ctx, 10)

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := channels.SendRequest{
		Channel:        d.Channel,
		To:             d.RecipientPhone,
		Message:        d.Message,
		IdempotencyKey: d.IdempotencyKey,
		Credentials:    creds,
	}
	if d.SenderIdentity != nil {
		req.SenderIdentity = *d.SenderIdentity
	}
	sent, err := w.sender.Send(ctx, req)
	if err != nil {
		w.log.Warn("send failed",
			zap.String("job_id", job.ID),
			zap.String("idempotency_key", d.IdempotencyKey),
			zap.Int("attempt", job.Attempt),
			zap.String("code", channels.Code(err)),
			zap.Error(err),
		)
		if !channels.IsRetryable(err) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}
	_ = job.Progress(ctx, 80)

	res := models.DispatchResult{ExternalID: sent.ExternalID, SentAt: time.Now().UTC()}
	if d.Metadata.AdID != nil {
		// The message is out; a lead write failure must not cause a resend.
		created, lerr := w.pool.leads.CreateLeadIfAbsent(ctx, d.Metadata.TenantID, d.Metadata.CampaignID, *d.Metadata.AdID, d.Channel)
		if lerr != nil {
			w.log.Error("lead not recorded", zap.String("job_id", job.ID), zap.String("ad_id", d.Metadata.AdID.String()), zap.Error(lerr))
		}
		res.LeadCreated = created
	}

	payload := map[string]any{
		"job_id":      job.ID,
		"channel":     string(d.Channel),
		"external_id": sent.ExternalID,
		"manual":      d.Manual,
	}
	if d.Metadata.CampaignID != nil {
		payload["campaign_id"] = d.Metadata.CampaignID.String()
	}
	_ = w.pool.publisher.Publish(ctx, events.StreamHunt, events.Event{
		Type:     events.EventJobCompleted,
		TenantID: d.Metadata.TenantID.String(),
		Payload:  payload,
	})
	w.log.Info("message sent",
		zap.String("job_id", job.ID),
		zap.String("idempotency_key", d.IdempotencyKey),
		zap.String("external_id", sent.ExternalID),
	)
	return json.Marshal(res)
}

// credentials opens the tenant's sealed provider credentials for the job's channel.
func (w *channelWorker) credentials(ctx context.Context, d *models.DispatchJob) (credentials.Credentials, error) {
	st, err := w.pool.settings.Get(ctx, d.Metadata.TenantID, d.Channel)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, queue.Permanent(channels.PermanentError(channels.CodeCredentialsMissing, err))
	}
	if err != nil {
		return nil, err
	}
	if !st.Enabled {
		return nil, queue.Permanent(channels.PermanentError(channels.CodeCredentialsRevoked, errors.New("channel disabled")))
	}
	creds, err := w.pool.box.Open(st.SealedCredentials)
	if err != nil {
		return nil, queue.Permanent(channels.PermanentError(channels.CodeCredentialsMissing, err))
	}
	return creds, nil
}

func (w *channelWorker) failed(ctx context.Context, job *queue.Job, d *models.DispatchJob, err error) {
	code := channels.Code(err)
	if code == "" {
		code = "attempts_exhausted"
	}
	payload := map[string]any{
		"job_id":   job.ID,
		"channel":  string(d.Channel),
		"code":     code,
		"attempts": job.Attempt,
	}
	if d.TransactionID != nil {
		payload["transaction_id"] = d.TransactionID.String()
		payload["reference"] = d.IdempotencyKey
	}
	_ = w.pool.publisher.Publish(ctx, events.StreamHunt, events.Event{
		Type:     events.EventJobFailed,
		TenantID: d.Metadata.TenantID.String(),
		Payload:  payload,
	})
}
