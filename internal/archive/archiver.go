// Package archive moves finished market history out of the primary database
// and into cold storage on a schedule.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Exporter is the piece that actually writes history to cold storage.
type Exporter interface {
	// ArchiveMarkets exports terminal markets created before the cutoff and
	// returns how many were written.
	ArchiveMarkets(ctx context.Context, before time.Time) (int64, error)
}

// Archiver runs the exporter on a retention window, either once or on a cron
// schedule.
type Archiver struct {
	exporter      Exporter
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. Markets stay queryable in Postgres for
// retentionDays after creation before an archive run picks them up.
func NewArchiver(exporter Exporter, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		exporter:      exporter,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run against the retention cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.exporter.ArchiveMarkets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: markets before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete", slog.Int64("markets_archived", archived))
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "0 3 1 * *" runs at 3:00 AM on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
