// Package retention deletes messages whose retention window has passed,
// together with the images they carried.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/media"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/repositories"
)

type Store interface {
	PurgeExpired(ctx context.Context, before time.Time, batch int, release repositories.ReleaseImages) (int64, error)
}

type ImageRemover interface {
	Delete(ctx context.Context, url string) error
}

type Purger struct {
	store    Store
	images   ImageRemover
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewPurger(store Store, images ImageRemover, interval time.Duration, batch int) *Purger {
	if interval <= 0 {
		interval = time.Hour
	}
	if batch <= 0 {
		batch = 1000
	}
	return &Purger{store: store, images: images, interval: interval, batch: batch, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("message purge failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes expired messages batch by batch until a short batch shows
// nothing is left. It returns the number deleted.
func (p *Purger) Sweep(ctx context.Context) (int64, error) {
	cutoff := p.now()
	var total int64
	for {
		n, err := p.store.PurgeExpired(ctx, cutoff, p.batch, p.removeImages)
		total += n
		observability.AddMessagesPurged(n)
		if err != nil {
			return total, err
		}
		if n < int64(p.batch) || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		logger.Info().Int64("deleted", total).Time("cutoff", cutoff).Msg("expired messages purged")
	}
	return total, nil
}

// removeImages deletes the images of a batch. Images already gone count as
// removed, so a batch retried after a partial failure converges.
func (p *Purger) removeImages(ctx context.Context, urls []string) error {
	if p.images == nil {
		return nil
	}
	for _, url := range urls {
		err := p.images.Delete(ctx, url)
		if err != nil && !errors.Is(err, media.ErrImageNotFound) {
			return fmt.Errorf("delete image %s: %w", url, err)
		}
	}
	logger.Debug().Int("images", len(urls)).Msg("purged message images removed")
	return nil
}
