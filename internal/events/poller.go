package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Poller drains the outbox into a publisher. Failed events stay pending for the next tick.
type Poller struct {
	outbox    Outbox
	publisher Publisher
	tick      time.Duration
	batch     int
	log       zerolog.Logger
}

func NewPoller(outbox Outbox, publisher Publisher, tick time.Duration, log zerolog.Logger) *Poller {
	if tick <= 0 {
		tick = time.Second
	}
	return &Poller{outbox: outbox, publisher: publisher, tick: tick, batch: 100, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes pending events once and returns how many were published.
func (p *Poller) Flush(ctx context.Context) int {
	pending, err := p.outbox.Pending(ctx, p.batch)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch pending events")
		return 0
	}

	published := 0
	for _, e := range pending {
		if err := p.publisher.Publish(ctx, e); err != nil {
			p.log.Warn().Err(err).Str("event_id", e.ID).Str("order_id", e.AggregateID).Msg("failed to publish event")
			continue
		}
		if err := p.outbox.MarkPublished(ctx, e.ID); err != nil {
			p.log.Error().Err(err).Str("event_id", e.ID).Msg("failed to mark event as published")
			continue
		}
		published++
	}
	return published
}
