package feed

import (
	"context"
	"time"

	"orderflow/internal/book"
	"orderflow/internal/restclient"
	"orderflow/logger"
)

// Poller is the REST fallback path: it periodically fetches snapshots for
// every subscribed symbol and applies them to the store. It serves as the
// only data source when streaming is disabled and as a backfill source
// otherwise.
type Poller struct {
	client   *restclient.Client
	store    *book.Store
	registry *Registry
	interval time.Duration
	depth    int
	log      *logger.Entry
}

func NewPoller(client *restclient.Client, store *book.Store, registry *Registry, interval time.Duration, depth int, log *logger.Log) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		client:   client,
		store:    store,
		registry: registry,
		interval: interval,
		depth:    depth,
		log:      log.WithComponent("poller"),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller shutting down")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches and applies one snapshot per subscribed symbol.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, symbol := range p.registry.Symbols() {
		snap, err := p.client.Orderbook(ctx, symbol, p.depth)
		if err != nil {
			p.log.WithError(err).WithField("symbol", symbol).Warn("snapshot fetch failed")
			continue
		}

		normalized, err := book.Normalize(snap, time.Now())
		if err != nil {
			p.log.WithError(err).WithField("symbol", symbol).Warn("snapshot rejected by normalizer")
			continue
		}
		p.store.Apply(normalized)
	}
}
