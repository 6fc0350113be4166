package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klcheung/alertledger/internal/models"
)

// Ingestor is the slice of the lifecycle engine the poller needs.
type Ingestor interface {
	Ingest(msg models.Message) (orderID string, produced bool)
}

// Poller periodically pulls recent messages for each monitored channel and
// feeds them to the engine. The journal's id check makes redundant fetches
// harmless, so the poller always re-reads a window rather than tracking
// cursors.
type Poller struct {
	client    Client
	ingestor  Ingestor
	channels  []string
	interval  time.Duration
	batchSize int
	logger    *logrus.Logger
}

// NewPoller creates a poller over the given channels.
func NewPoller(client Client, ingestor Ingestor, channels []string, interval time.Duration, logger *logrus.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Poller{
		client:    client,
		ingestor:  ingestor,
		channels:  channels,
		interval:  interval,
		batchSize: 50,
		logger:    logger,
	}
}

// Run polls until the context is canceled. The first poll happens
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches one window per channel and ingests it oldest-first, so
// opens land before the updates and closes that reference them. Fetch
// failures are logged and skipped; the next tick retries.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, channelID := range p.channels {
		msgs, err := p.client.FetchMessages(ctx, channelID, p.batchSize)
		if err != nil {
			p.logger.WithError(err).Warnf("polling channel %s failed", channelID)
			continue
		}
		// Relays return newest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			if orderID, produced := p.ingestor.Ingest(msgs[i]); produced {
				p.logger.Infof("message %s produced order %s", msgs[i].ID, orderID)
			}
		}
	}
}
