// Package workers runs one dispatch pool per channel. Pools share nothing:
// each has its own queue, goroutines and send rate.
package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ads-hunter/backend/internal/channels"
	"github.com/ads-hunter/backend/internal/credentials"
	"github.com/ads-hunter/backend/internal/events"
	"github.com/ads-hunter/backend/internal/models"
	"github.com/ads-hunter/backend/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Processor interface {
	Process(ctx context.Context, queue string, concurrency int, handler queue.Handler) error
}

type SettingsReader interface {
	Get(ctx context.Context, tenantID uuid.UUID, channel models.Channel) (*models.TenantChannelSettings, error)
}

type LeadRecorder interface {
	CreateLeadIfAbsent(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID, adID uuid.UUID, channel models.Channel) (bool, error)
}

type ChannelOptions struct {
	Concurrency   int
	RatePerSecond int // 0 = unlimited
}

type Pool struct {
	queue     Processor
	senders   map[models.Channel]channels.Sender
	options   map[models.Channel]ChannelOptions
	settings  SettingsReader
	leads     LeadRecorder
	box       *credentials.Box
	publisher events.Publisher
	log       *zap.Logger
}

func NewPool(
	q Processor,
	senders map[models.Channel]channels.Sender,
	options map[models.Channel]ChannelOptions,
	settings SettingsReader,
	leads LeadRecorder,
	box *credentials.Box,
	publisher events.Publisher,
	log *zap.Logger,
) *Pool {
	return &Pool{
		queue:     q,
		senders:   senders,
		options:   options,
		settings:  settings,
		leads:     leads,
		box:       box,
		publisher: publisher,
		log:       log,
	}
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// Run blocks until ctx is cancelled or a channel's queue fails.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for ch, sender := range p.senders {
		opts := p.options[ch]
		if opts.Concurrency < 1 {
			opts.Concurrency = 1
		}
		w := &channelWorker{
			pool:    p,
			channel: ch,
			sender:  sender,
			limiter: newLimiter(opts.RatePerSecond),
			log:     p.log.With(zap.String("channel", string(ch))),
		}
		g.Go(func() error {
			w.log.Info("channel worker started",
				zap.Int("concurrency", opts.Concurrency),
				zap.Int("rate_per_second", opts.RatePerSecond),
			)
			err := p.queue.Process(ctx, ch.QueueName(), opts.Concurrency, w.handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s worker: %w", ch, err)
			}
			return nil
		})
	}
	return g.Wait()
}
