package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
	"github.com/allforgood/datahub/internal/geocode"
	"github.com/allforgood/datahub/internal/linkcheck"
	"github.com/allforgood/datahub/internal/providers"
)

type captureIndexer struct {
	doc *feed.CanonicalFeed
}

func (i *captureIndexer) Index(_ context.Context, f *feed.CanonicalFeed) error {
	i.doc = f
	return nil
}

type fixedResolver struct {
	mu     sync.Mutex
	calls  int
	result *geocode.Result
}

func (r *fixedResolver) Resolve(context.Context, string) (*geocode.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result, nil
}

func testPayload(badURL, goodURL string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<FootprintFeed schemaVersion="0.1">
  <FeedInfo>
    <providerID>105</providerID>
    <providerName>bayfoodbank</providerName>
    <feedID>1</feedID>
  </FeedInfo>
  <Organizations>
    <Organization>
      <organizationID>11</organizationID>
      <name>Bay Food Bank</name>
    </Organization>
  </Organizations>
  <VolunteerOpportunities>
    <VolunteerOpportunity>
      <volunteerOpportunityID>opp-1</volunteerOpportunityID>
      <sponsoringOrganizationIDs><sponsoringOrganizationID>11</sponsoringOrganizationID></sponsoringOrganizationIDs>
      <title>Sort produce</title>
      <detailURL>` + badURL + `</detailURL>
      <description>Sort donated produce for distribution.</description>
      <locations><location>
        <streetAddress1>900 Market St</streetAddress1>
        <city>San Francisco</city>
        <region>CA</region>
      </location></locations>
    </VolunteerOpportunity>
    <VolunteerOpportunity>
      <volunteerOpportunityID>opp-2</volunteerOpportunityID>
      <sponsoringOrganizationIDs><sponsoringOrganizationID>99</sponsoringOrganizationID></sponsoringOrganizationIDs>
      <title>Deliver meals</title>
      <detailURL>` + goodURL + `</detailURL>
      <description>Bring meals to homebound seniors.</description>
      <locations><location>
        <city>Oakland</city>
        <latitude>37.8044</latitude>
        <longitude>-122.2712</longitude>
      </location></locations>
    </VolunteerOpportunity>
    <VolunteerOpportunity>
      <title>Record without an id</title>
    </VolunteerOpportunity>
  </VolunteerOpportunities>
</FootprintFeed>`)
}

func testGeocoder(t *testing.T, resolver geocode.Resolver) *geocode.Geocoder {
	t.Helper()
	cache, err := geocode.OpenCache(filepath.Join(t.TempDir(), "geocode_cache.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return geocode.NewGeocoder(cache, resolver, zap.NewNop())
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dead" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	badURL := srv.URL + "/dead"
	goodURL := srv.URL + "/alive"

	resolver := &fixedResolver{result: &geocode.Result{
		Address: "900 Market St, San Francisco, CA", Latitude: "37.7838", Longitude: "-122.4090", Accuracy: 5,
	}}
	checker, err := linkcheck.Open(linkcheck.Config{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	defer checker.Close()

	indexer := &captureIndexer{}
	now := func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	p := &Pipeline{
		Parser:   &providers.Footprint{Logger: zap.NewNop(), Now: now},
		Geocoder: testGeocoder(t, resolver),
		Checker:  checker,
		Indexer:  indexer,
		Logger:   zap.NewNop(),
	}

	report, err := p.Run(context.Background(), testPayload(badURL, goodURL))
	require.NoError(t, err)

	require.Equal(t, "footprint", report.Source)
	require.Equal(t, 1, report.Organizations)
	require.Equal(t, 2, report.Opportunities)
	require.Equal(t, 1, report.Skipped)

	// Only the location without coordinates gets geocoded.
	require.Equal(t, 1, report.Geocoded)
	require.Equal(t, 0, report.GeocodeMisses)
	require.Equal(t, 1, resolver.calls)

	require.Equal(t, []string{badURL}, report.BadLinks)
	require.Equal(t, 1, report.DanglingSponsor, "opp-2 references an unknown organization")

	require.NotNil(t, indexer.doc)
	loc := indexer.doc.Opportunities[0].Locations[0]
	require.Equal(t, "37.7838", loc.Latitude)
	require.Equal(t, "-122.4090", loc.Longitude)
	pre := indexer.doc.Opportunities[1].Locations[0]
	require.Equal(t, "37.8044", pre.Latitude, "existing coordinates stay untouched")
}

func TestPipelineRunGeocodeMiss(t *testing.T) {
	t.Parallel()

	resolver := &fixedResolver{result: nil}
	now := func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	p := &Pipeline{
		Parser:   &providers.Footprint{Logger: zap.NewNop(), Now: now},
		Geocoder: testGeocoder(t, resolver),
		Logger:   zap.NewNop(),
	}

	report, err := p.Run(context.Background(), testPayload("", ""))
	require.NoError(t, err)
	require.Equal(t, 0, report.Geocoded)
	require.Equal(t, 1, report.GeocodeMisses)
}

func TestPipelineRunWithoutEnrichment(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	p := &Pipeline{
		Parser: &providers.Footprint{Logger: zap.NewNop(), Now: now},
		Logger: zap.NewNop(),
	}

	report, err := p.Run(context.Background(), testPayload("", ""))
	require.NoError(t, err)
	require.Equal(t, 2, report.Opportunities)
	require.Empty(t, report.BadLinks)
	require.Equal(t, 0, report.Geocoded)
}

func TestPipelineRunParseError(t *testing.T) {
	t.Parallel()

	p := &Pipeline{
		Parser: &providers.Footprint{Logger: zap.NewNop()},
		Logger: zap.NewNop(),
	}
	_, err := p.Run(context.Background(), []byte("not xml at all"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "footprint")
}
