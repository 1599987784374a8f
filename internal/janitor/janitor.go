// Package janitor expires parked blobs. Download tokens and sessions expire
// through store TTLs on their own; the blobs behind them need an active
// sweep.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ipaforge/ipaforge/internal/storage"
)

type Janitor struct {
	logger    *slog.Logger
	blobs     storage.BlobStore
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// New builds a janitor that deletes blobs older than retention on the given
// cron schedule ("@hourly" when empty).
func New(log *slog.Logger, blobs storage.BlobStore, retention time.Duration, schedule string) *Janitor {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Janitor{
		logger:    log.With(slog.String("service", "janitor")),
		blobs:     blobs,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
	}
}

func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.Sweep(context.Background()); err != nil {
			j.logger.Error("sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep deletes every blob past the retention window.
func (j *Janitor) Sweep(ctx context.Context) error {
	objects, err := j.blobs.List(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-j.retention)
	removed := 0
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := j.blobs.Delete(ctx, obj.Key); err != nil {
			j.logger.Warn("blob delete failed",
				slog.String("key", obj.Key),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("sweep complete",
			slog.Int("removed", removed),
			slog.Int("scanned", len(objects)),
		)
	}
	return nil
}
