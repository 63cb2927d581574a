package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/locks"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/pacing"
	"github.com/ads-hunter/backend/internal/repositories"
	"github.com/ads-hunter/backend/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunInProgress  = errors.New("daily hunt already running")
	ErrCampaignBusy   = errors.New("campaign is being processed")
	ErrCampaignPaused = errors.New("campaign is not active")
)

const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"

	// SkipCampaignBusy marks a campaign another process was already working on.
	SkipCampaignBusy = "campaign_busy"
)

type CampaignResult struct {
	CampaignID uuid.UUID      `json:"campaign_id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	Status     string         `json:"status"`
	Dispatched int            `json:"messages_dispatched"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Skipped    map[string]int `json:"skipped,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type RunSummary struct {
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Results    []CampaignResult `json:"results"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

type HuntConfig struct {
	Concurrency      int
	WhatsAppDailyCap int
	RunLockTTL       time.Duration
	ContactLockTTL   time.Duration
	ContactLockWait  time.Duration
}

// HuntService is the orchestrator: it walks runnable campaigns, allocates
// channels to their matching ads and hands the work to the dispatch queues.
type HuntService struct {
	campaigns CampaignStore
	ads       AdMatcher
	ledger    *LedgerService
	tracker   pacing.Tracker
	contacts  *ContactService
	dispatch  *DispatchService
	settings  SettingsStore
	locker    locks.Locker
	publisher events.Publisher
	cfg       HuntConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewHuntService(
	campaigns CampaignStore,
	ads AdMatcher,
	ledger *LedgerService,
	tracker pacing.Tracker,
	contacts *ContactService,
	dispatch *DispatchService,
	settings SettingsStore,
	locker locks.Locker,
	publisher events.Publisher,
	cfg HuntConfig,
	log *zap.Logger,
) *HuntService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RunLockTTL <= 0 {
		cfg.RunLockTTL = 30 * time.Minute
	}
	if cfg.ContactLockTTL <= 0 {
		cfg.ContactLockTTL = time.Minute
	}
	return &HuntService{
		campaigns: campaigns,
		ads:       ads,
		ledger:    ledger,
		tracker:   tracker,
		contacts:  contacts,
		dispatch:  dispatch,
		settings:  settings,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// RunDaily processes every runnable campaign with at most cfg.Concurrency in
// flight. A failing campaign never aborts the run.
func (s *HuntService) RunDaily(ctx context.Context) (summary *RunSummary, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "hunt.run_daily")
	defer func() { telemetry.End(span, err) }()

	lock, err := s.locker.Obtain(ctx, locks.DailyRunKey(), s.cfg.RunLockTTL, 0)
	if errors.Is(err, locks.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	ctx, stop := s.holdLock(ctx, lock, "daily run")
	defer stop()

	summary = &RunSummary{StartedAt: s.now()}
	campaigns, err := s.campaigns.ListRunnable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runnable campaigns: %w", err)
	}
	s.log.Info("daily hunt started", zap.Int("campaigns", len(campaigns)), zap.Int("concurrency", s.cfg.Concurrency))

	results := make([]CampaignResult, len(campaigns))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range campaigns {
		c := &campaigns[i]
		g.Go(func() error {
			results[i] = s.runCampaign(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	summary.Total = len(results)
	summary.Results = results
	for _, r := range results {
		if r.Status == ResultSucceeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.FinishedAt = s.now()
	span.SetAttributes(
		attribute.Int("hunt.total", summary.Total),
		attribute.Int("hunt.failed", summary.Failed),
	)

	s.log.Info("daily hunt finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	_ = s.publisher.Publish(ctx, events.StreamHunt, events.Event{
		Type: events.EventRunCompleted,
		Payload: map[string]any{
			"total":     summary.Total,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
		},
	})
	return summary, nil
}

// holdLock keeps lock refreshed for as long as the work runs. Losing it cancels
// the returned context so the work stops instead of overlapping a new holder.
func (s *HuntService) holdLock(ctx context.Context, lock locks.Lock, what string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	stopRefresh := locks.KeepAlive(ctx, lock, s.cfg.RunLockTTL, func(err error) {
		s.log.Error("lock lost, stopping", zap.String("holder", what), zap.Error(err))
		cancel(fmt.Errorf("%w: %s", locks.ErrLockLost, what))
	})
	return ctx, func() {
		stopRefresh()
		cancel(nil)
	}
}

// ProcessCampaign runs one campaign on demand for its owner.
func (s *HuntService) ProcessCampaign(ctx context.Context, campaignID, tenantID uuid.UUID) (*CampaignResult, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, repositories.ErrNotFound
	}
	if !c.Runnable() {
		return nil, ErrCampaignPaused
	}

	res := s.runCampaign(ctx, c)
	if res.SkipReason == SkipCampaignBusy {
		return nil, ErrCampaignBusy
	}
	return &res, nil
}

// runCampaign holds the campaign lock and turns a panic into a failed result.
func (s *HuntService) runCampaign(ctx context.Context, c *models.Campaign) (res CampaignResult) {
	res = CampaignResult{CampaignID: c.ID, TenantID: c.TenantID, Status: ResultSucceeded}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("campaign panicked", zap.String("campaign_id", c.ID.String()), zap.Any("panic", r))
			res.Status = ResultFailed
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	lock, err := s.locker.Obtain(ctx, locks.CampaignKey(c.ID.String()), s.cfg.RunLockTTL, 0)
	if errors.Is(err, locks.ErrNotObtained) {
		res.SkipReason = SkipCampaignBusy
		return res
	}
	if err != nil {
		res.Status = ResultFailed
		res.Error = err.Error()
		return res
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	ctx, stop := s.holdLock(ctx, lock, "campaign "+c.ID.String())
	defer stop()

	if err := s.processCampaign(ctx, c, &res); err != nil {
		s.log.Error("campaign failed",
			zap.String("campaign_id", c.ID.String()),
			zap.String("tenant_id", c.TenantID.String()),
			zap.Int("dispatched", res.Dispatched),
			zap.Error(err),
		)
		res.Status = ResultFailed
		res.Error = err.Error()
		return res
	}

	_ = s.publisher.Publish(ctx, events.StreamHunt, events.Event{
		Type:     events.EventCampaignProcessed,
		TenantID: c.TenantID.String(),
		Payload: map[string]any{
			"campaign_id":         c.ID.String(),
			"messages_dispatched": res.Dispatched,
			"skip_reason":         res.SkipReason,
			"skipped":             res.Skipped,
		},
	})
	return res
}

func (s *HuntService) processCampaign(ctx context.Context, c *models.Campaign, res *CampaignResult) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "hunt.process_campaign")
	span.SetAttributes(attribute.String("campaign.id", c.ID.String()))
	defer func() { telemetry.End(span, err) }()

	atLimit, err := s.tracker.IsAtLimit(ctx, c.ID, c.DailyLimit)
	if err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	if atLimit {
		res.SkipReason = SkipPacingLimit
		return s.campaigns.TouchLastScan(ctx, c.ID, s.now())
	}

	candidates, err := s.ads.GetMatchingAds(ctx, c, nil)
	if err != nil {
		return fmt.Errorf("match ads: %w", err)
	}
	if len(candidates) == 0 {
		res.SkipReason = SkipNoMatchingAds
		return s.campaigns.TouchLastScan(ctx, c.ID, s.now())
	}

	state, senders, err := s.buildState(ctx, c)
	if err != nil {
		return err
	}

	plan := Allocate(c.ChannelPriority, candidates, state)
	res.Skipped = plan.SkipCounts()

	templates := make(map[models.Channel]*models.MessageTemplate)
	for _, a := range plan.Allocations {
		if err := ctx.Err(); err != nil {
			return err
		}
		reason, err := s.dispatchOne(ctx, c, a, senders, templates)
		if err != nil {
			return err
		}
		if reason != "" {
			res.Skipped[reason]++
			continue
		}
		res.Dispatched++
	}
	span.SetAttributes(attribute.Int("campaign.dispatched", res.Dispatched))

	return s.campaigns.TouchLastScan(ctx, c.ID, s.now())
}

// buildState gathers what the allocator needs: remaining credits, today's
// counters and which channels the tenant can send on.
func (s *HuntService) buildState(ctx context.Context, c *models.Campaign) (AllocationState, map[models.Channel]*string, error) {
	state := AllocationState{
		Remaining:    make(map[models.Channel]int64),
		DailyLimit:   c.DailyLimit,
		UnmeteredCap: s.cfg.WhatsAppDailyCap,
		Enabled:      make(map[models.Channel]bool),
	}

	budgets, err := s.ledger.Budgets(ctx, c.TenantID, c.ID)
	if err != nil {
		return state, nil, fmt.Errorf("load budgets: %w", err)
	}
	for _, b := range budgets {
		state.Remaining[b.Channel] = b.Remaining()
	}

	counts, err := s.tracker.Snapshot(ctx, c.ID)
	if err != nil {
		return state, nil, fmt.Errorf("pacing snapshot: %w", err)
	}
	state.Total = counts.Total
	state.ChannelCounts = counts.PerChannel

	settings, err := s.settings.ListByTenant(ctx, c.TenantID)
	if err != nil {
		return state, nil, fmt.Errorf("load channel settings: %w", err)
	}
	senders := make(map[models.Channel]*string, len(settings))
	for i := range settings {
		st := &settings[i]
		state.Enabled[st.Channel] = st.Usable()
		senders[st.Channel] = st.SenderIdentity
	}
	return state, senders, nil
}

// dispatchOne carries one allocation from credit reservation to enqueue.
// A non-empty reason means the ad was skipped; err aborts the campaign.
func (s *HuntService) dispatchOne(
	ctx context.Context,
	c *models.Campaign,
	a Allocation,
	senders map[models.Channel]*string,
	templates map[models.Channel]*models.MessageTemplate,
) (string, error) {
	ad := a.Candidate
	lock, err := s.locker.Obtain(ctx, locks.ContactKey(c.TenantID.String(), ad.ID.String()), s.cfg.ContactLockTTL, s.cfg.ContactLockWait)
	if errors.Is(err, locks.ErrNotObtained) {
		return SkipAlreadyContacted, nil
	}
	if err != nil {
		return "", fmt.Errorf("obtain contact lock: %w", err)
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	// Another campaign of the tenant may have reached this ad since matching.
	contacted, err := s.contacts.IsContacted(ctx, c.TenantID, ad.ID)
	if err != nil {
		return "", err
	}
	if contacted {
		return SkipAlreadyContacted, nil
	}

	tpl, cached := templates[a.Channel]
	if !cached {
		if tpl, err = s.dispatch.DefaultTemplate(ctx, c.TenantID, a.Channel); err != nil {
			return "", fmt.Errorf("load template: %w", err)
		}
		templates[a.Channel] = tpl
	}
	if tpl == nil {
		return SkipNoTemplate, nil
	}
	message := s.dispatch.Render(tpl.Body, ad.TemplateVars())
	if message == "" {
		return SkipNoTemplate, nil
	}

	phone, err := s.dispatch.Normalize(ad.RecipientPhone)
	if err != nil {
		return SkipMissingRecipient, nil
	}

	key := models.IdempotencyKey(c.ID, ad.ID, a.Channel)
	campaignID, adID := c.ID, ad.ID
	job := &models.DispatchJob{
		IdempotencyKey: key,
		Channel:        a.Channel,
		RecipientPhone: phone,
		Message:        message,
		SenderIdentity: senders[a.Channel],
		Metadata:       models.DispatchMetadata{CampaignID: &campaignID, TenantID: c.TenantID, AdID: &adID},
	}

	if a.Channel.Metered() {
		res, err := s.ledger.Consume(ctx, models.BudgetKey{TenantID: c.TenantID, CampaignID: c.ID, Channel: a.Channel}, &key)
		if err != nil {
			return "", err
		}
		if res.Reason == ReasonReferenceRefunded {
			return SkipAlreadyContacted, nil
		}
		if !res.OK {
			return SkipInsufficientCredits, nil
		}
		job.TransactionID = &res.Transaction.ID
	}

	jobID, err := s.dispatch.Enqueue(ctx, job)
	if err != nil {
		// The credit stays consumed; an operator refunds it by reference.
		s.log.Error("enqueue failed after credit consume",
			zap.String("campaign_id", c.ID.String()),
			zap.String("reference", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("enqueue %s: %w", key, err)
	}

	if _, err := s.contacts.RecordContact(ctx, c.TenantID, &campaignID, ad.ID, a.Channel); err != nil {
		return "", fmt.Errorf("record contact: %w", err)
	}
	if err := s.tracker.Increment(ctx, c.ID, a.Channel); err != nil {
		return "", fmt.Errorf("pacing increment: %w", err)
	}

	s.log.Debug("ad dispatched",
		zap.String("campaign_id", c.ID.String()),
		zap.String("ad_id", ad.ID.String()),
		zap.String("channel", string(a.Channel)),
		zap.String("job_id", jobID),
	)
	return "", nil
}
