// Package pipeline is the batch driver tying one ingestion run
// together: parse a raw payload with a provider parser, normalize it,
// enrich locations with geocoding, annotate dead detail links, and
// hand the finished document to the downstream indexer.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
	"github.com/allforgood/datahub/internal/geocode"
	"github.com/allforgood/datahub/internal/linkcheck"
	"github.com/allforgood/datahub/internal/metrics"
)

// Indexer receives the completed canonical feed. The search index
// behind it is an external collaborator; it never sees raw payloads.
type Indexer interface {
	Index(ctx context.Context, f *feed.CanonicalFeed) error
}

// Report summarizes one run.
type Report struct {
	Source          string
	Organizations   int
	Opportunities   int
	Skipped         int
	Geocoded        int
	GeocodeMisses   int
	GeocodeHitRate  float64
	BadLinks        []string
	DanglingSponsor int
}

// Pipeline runs ingestions. Geocoder and Checker may be nil to skip
// the corresponding enrichment, the parse and normalize stages always
// run.
type Pipeline struct {
	Parser   feed.Parser
	Geocoder *geocode.Geocoder
	Checker  *linkcheck.Checker
	Indexer  Indexer
	Logger   *zap.Logger

	MaxRecords int
	Progress   bool
}

// Run executes one ingestion over a raw payload. Records are processed
// one at a time; the crawler is the only concurrent component in the
// system.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (*Report, error) {
	doc, stats, err := p.Parser.Parse(raw, p.MaxRecords, p.Progress)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.Parser.Name(), err)
	}

	report := &Report{
		Source:        p.Parser.Name(),
		Organizations: stats.Organizations,
		Opportunities: stats.Opportunities,
		Skipped:       stats.Skipped,
	}
	metrics.OrganizationsEmitted.Add(float64(stats.Organizations))
	metrics.OpportunitiesEmitted.Add(float64(stats.Opportunities))
	metrics.RecordsSkipped.Add(float64(stats.Skipped))

	for i := range doc.Opportunities {
		opp := &doc.Opportunities[i]
		p.geocodeLocations(ctx, opp, report)
		p.checkDetailLink(ctx, opp, report)
	}

	report.DanglingSponsor = doc.DanglingSponsorRefs()
	if report.DanglingSponsor > 0 {
		p.Logger.Warn("dangling sponsor references",
			zap.String("source", report.Source),
			zap.Int("count", report.DanglingSponsor))
	}
	if p.Geocoder != nil {
		report.GeocodeHitRate = p.Geocoder.HitRate()
	}

	if p.Indexer != nil {
		if err := p.Indexer.Index(ctx, doc); err != nil {
			return report, fmt.Errorf("index %s: %w", p.Parser.Name(), err)
		}
	}

	p.Logger.Info("run complete",
		zap.String("source", report.Source),
		zap.Int("organizations", report.Organizations),
		zap.Int("opportunities", report.Opportunities),
		zap.Int("skipped", report.Skipped),
		zap.Int("geocoded", report.Geocoded),
		zap.Int("bad_links", len(report.BadLinks)),
		zap.Float64("geocode_hit_rate", report.GeocodeHitRate))
	return report, nil
}

// geocodeLocations fills lat/lng on any location that has address
// text but no coordinates yet. Transient geocode failures leave the
// location as-is.
func (p *Pipeline) geocodeLocations(ctx context.Context, opp *feed.VolunteerOpportunity, report *Report) {
	if p.Geocoder == nil {
		return
	}
	for i := range opp.Locations {
		loc := &opp.Locations[i]
		if loc.Latitude != "" || loc.Longitude != "" {
			continue
		}
		query := locationQuery(loc)
		if query == "" {
			continue
		}
		res, err := p.Geocoder.Geocode(ctx, query, true)
		if err != nil {
			p.Logger.Warn("geocode unavailable",
				zap.String("query", query), zap.Error(err))
			continue
		}
		if res == nil {
			report.GeocodeMisses++
			continue
		}
		loc.Latitude = res.Latitude
		loc.Longitude = res.Longitude
		report.Geocoded++
		metrics.OpportunitiesGeocoded.Inc()
	}
}

// locationQuery flattens a location into geocodable text.
func locationQuery(loc *feed.Location) string {
	parts := []string{
		loc.StreetAddress1, loc.StreetAddress2,
		loc.City, loc.Region, loc.PostalCode, loc.Country,
	}
	var nonEmpty []string
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return strings.TrimSpace(loc.Name)
	}
	return strings.Join(nonEmpty, ", ")
}

// checkDetailLink records a dead detail URL in the report. The model
// is left untouched so the indexer decides how to treat bad links.
func (p *Pipeline) checkDetailLink(ctx context.Context, opp *feed.VolunteerOpportunity, report *Report) {
	if p.Checker == nil || opp.DetailURL == "" {
		return
	}
	if p.Checker.Check(ctx, opp.DetailURL, false) == linkcheck.OutcomeBad {
		report.BadLinks = append(report.BadLinks, opp.DetailURL)
		metrics.BadLinks.Inc()
	}
}
