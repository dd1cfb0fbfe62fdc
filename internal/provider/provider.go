// Package provider adapts external chart catalogs into the common
// SourceRecord shape. Adapters are thin I/O glue: authentication,
// fetching and field mapping only; identity and scoring live elsewhere.
package provider

import (
	"context"

	"trendpanel/internal/models"
)

// Provider fetches one catalog's ranked listing for a region and
// optional genre. Implementations return normalized records ready for
// the identity matcher; a wholesale fetch failure is reported as an
// error and costs the run that one source, never the whole batch.
type Provider interface {
	Name() models.Source
	FetchCharts(ctx context.Context, region, genre string) ([]models.SourceRecord, error)
}

const chartLimit = 50
