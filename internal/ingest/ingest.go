// Package ingest runs one refresh cycle: fetch every provider's chart,
// resolve each record to a canonical track and persist the day's trend
// entries. Provider and record failures are collected, never fatal.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trendpanel/internal/models"
	"trendpanel/internal/provider"
	"trendpanel/internal/repository"
	"trendpanel/internal/scoring"
)

// TrackResolver folds a provider record into a canonical track id.
type TrackResolver interface {
	Resolve(ctx context.Context, rec models.SourceRecord) (int64, error)
}

// TrendWriter persists one observation per (track, source, day).
type TrendWriter interface {
	UpsertTrendEntry(ctx context.Context, e models.TrendEntry) error
}

// ProgressFunc receives stage updates during a run, used to stream
// refresh progress to clients.
type ProgressFunc func(stage, detail string)

type Runner struct {
	providers []provider.Provider
	resolver  TrackResolver
	store     TrendWriter
	logger    *zap.Logger
	now       func() time.Time
}

func NewRunner(providers []provider.Provider, resolver TrackResolver, store TrendWriter, logger *zap.Logger) *Runner {
	return &Runner{
		providers: providers,
		resolver:  resolver,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one full refresh for a region and genre. The returned
// report is never nil; the error is non-nil only when the context is
// cancelled mid-run.
func (r *Runner) Run(ctx context.Context, region, genre string, progress ProgressFunc) (*models.RefreshReport, error) {
	if progress == nil {
		progress = func(string, string) {}
	}

	start := r.now()
	report := &models.RefreshReport{Status: "completed"}
	chartDate := repository.Date(start)

	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			report.Status = "cancelled"
			report.DurationSeconds = r.now().Sub(start).Seconds()
			return report, err
		}

		name := string(p.Name())
		progress("fetching", name)

		records, err := p.FetchCharts(ctx, region, genre)
		if err != nil {
			r.logger.Warn("provider fetch failed",
				zap.String("provider", name), zap.Error(err))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		report.Providers = append(report.Providers, name)
		progress("resolving", fmt.Sprintf("%s: %d tracks", name, len(records)))

		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				report.Status = "cancelled"
				report.DurationSeconds = r.now().Sub(start).Seconds()
				return report, err
			}
			if err := r.ingestRecord(ctx, rec, region, genre, chartDate); err != nil {
				r.logger.Warn("record ingest failed",
					zap.String("provider", name),
					zap.String("title", rec.Title),
					zap.String("artist", rec.Artist),
					zap.Error(err))
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s %q by %q: %v", name, rec.Title, rec.Artist, err))
				continue
			}
			report.TracksProcessed++
		}
	}

	if len(report.Errors) > 0 {
		report.Status = "completed_with_errors"
	}
	report.DurationSeconds = r.now().Sub(start).Seconds()

	progress("done", fmt.Sprintf("%d tracks processed", report.TracksProcessed))
	r.logger.Info("refresh run finished",
		zap.String("status", report.Status),
		zap.Int("tracks", report.TracksProcessed),
		zap.Strings("providers", report.Providers),
		zap.Int("errors", len(report.Errors)),
		zap.Float64("seconds", report.DurationSeconds))
	return report, nil
}

func (r *Runner) ingestRecord(ctx context.Context, rec models.SourceRecord, region, genre, chartDate string) error {
	trackID, err := r.resolver.Resolve(ctx, rec)
	if err != nil {
		return err
	}

	var rank *int
	if rec.Ranked() {
		v := rec.Rank
		rank = &v
	}

	entry := models.TrendEntry{
		TrackID:   trackID,
		Source:    rec.Source,
		Rank:      rank,
		Score:     scoring.BaseScore(rank),
		Region:    region,
		Genre:     genre,
		ChartDate: chartDate,
		Metadata:  rec.Metadata,
	}
	return r.store.UpsertTrendEntry(ctx, entry)
}
