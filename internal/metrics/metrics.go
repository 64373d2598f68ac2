// Package metrics exposes Prometheus collectors for the ingestion
// pipeline and the crawler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrganizationsEmitted counts organization records written to
	// canonical feeds across all runs.
	OrganizationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_organizations_emitted_total",
		Help: "Organization records emitted into canonical feeds.",
	})

	// OpportunitiesEmitted counts opportunity records written to
	// canonical feeds across all runs.
	OpportunitiesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_opportunities_emitted_total",
		Help: "Volunteer opportunity records emitted into canonical feeds.",
	})

	// RecordsSkipped counts malformed source records dropped during
	// parsing.
	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_records_skipped_total",
		Help: "Malformed source records skipped during parsing.",
	})

	// OpportunitiesGeocoded counts locations enriched with
	// coordinates.
	OpportunitiesGeocoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_locations_geocoded_total",
		Help: "Opportunity locations enriched with geocoded coordinates.",
	})

	// GeocodeCacheLookups counts cache outcomes, labeled hit or miss.
	GeocodeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datahub_geocode_cache_lookups_total",
		Help: "Geocode cache lookups, labeled by outcome.",
	}, []string{"outcome"})

	// BadLinks counts detail URLs confirmed dead by the link checker.
	BadLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_bad_links_total",
		Help: "Detail URLs the link checker confirmed dead.",
	})

	// CrawlPages counts pages fetched by the crawler.
	CrawlPages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_crawl_pages_total",
		Help: "Pages fetched by the crawler.",
	})

	// CrawlRetries counts transient fetch failures that were retried.
	CrawlRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datahub_crawl_retries_total",
		Help: "Transient crawl fetch failures that triggered a retry.",
	})
)
