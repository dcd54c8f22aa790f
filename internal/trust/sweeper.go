package trust

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/pagination"
)

// Sweeper periodically rescores every seller so subscribers see fresh trust
// updates without asking. Results are published, never stored.
type Sweeper struct {
	service  *Service
	source   marketplace.Source
	interval time.Duration
	pageSize int
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a sweeper. interval is typically 15 minutes; a page
// size of 0 uses pagination.DefaultLimit.
func NewSweeper(service *Service, source marketplace.Source, interval time.Duration, pageSize int, logger *slog.Logger) *Sweeper {
	if pageSize <= 0 {
		pageSize = pagination.DefaultLimit
	}
	return &Sweeper{
		service:  service,
		source:   source,
		interval: interval,
		pageSize: pageSize,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Stop signals the sweeper to exit.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Sweep scores every seller once, page by page, and returns how many were
// scored.
func (w *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	q := marketplace.SellerQuery{Limit: w.pageSize}
	scored := 0
	for {
		sellers, err := w.source.ListSellers(ctx, q)
		if err != nil {
			w.logger.Warn("trust sweep failed to list sellers", "error", err, "scored", scored)
			return scored
		}
		if len(sellers) == 0 {
			break
		}

		ids := make([]string, len(sellers))
		for i, s := range sellers {
			ids[i] = s.ID
		}
		if _, err := w.service.ScoreBatch(ctx, ids); err != nil {
			w.logger.Warn("trust sweep batch failed", "error", err, "scored", scored)
			return scored
		}
		scored += len(ids)

		if len(sellers) < w.pageSize {
			break
		}
		last := sellers[len(sellers)-1]
		q.AfterJoined, q.AfterID = last.JoinedAt, last.ID
	}
	w.logger.Info("trust sweep completed", "sellers", scored, "duration", time.Since(start))
	return scored
}
