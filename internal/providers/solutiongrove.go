package providers

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

var wrapperDivRe = regexp.MustCompile(`(?s)^\s*<div[^>]*>|</div>\s*$`)

// SolutionGrove parses an Atom feed with g: and awb: extension
// namespaces. Each entry's author becomes an Organization; entry IDs
// double as detail URLs.
type SolutionGrove struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time
}

// Name implements feed.Parser.
func (p *SolutionGrove) Name() string { return "solutiongrove" }

// Parse implements feed.Parser.
func (p *SolutionGrove) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	// Content blocks may contain nested markup; keep them opaque.
	raw = wrapOpaque(raw, "content")

	src, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("solutiongrove: parse atom: %w", err)
	}

	info := p.Info
	if info.Description == "" {
		info.Description = src.Title
	}
	out := feed.New(info)
	stats := feed.ParseStats{}

	// First pass: register organizations from entry authors so
	// sponsor lookups during opportunity emission always resolve.
	orgIDs := map[string]string{}
	for _, item := range src.Items {
		name, uri := entryAuthor(item)
		if name == "" || orgIDs[name] != "" {
			continue
		}
		id := strconv.Itoa(len(orgIDs) + 1)
		orgIDs[name] = id
		out.Organizations = append(out.Organizations, feed.Organization{
			ID:              id,
			Name:            name,
			OrganizationURL: uri,
			Location:        &feed.OrgLocation{},
		})
		stats.Organizations++
	}

	for _, item := range src.Items {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		opp, ok := p.entryToOpportunity(item, orgIDs)
		if !ok {
			stats.Skipped++
			continue
		}
		out.Opportunities = append(out.Opportunities, opp)
		stats.Opportunities++
		logProgress(p.Logger, p.Name(), progress, stats.Opportunities)
	}

	feed.NewNormalizer(p.Now).Normalize(out)
	return out, stats, nil
}

func (p *SolutionGrove) entryToOpportunity(item *gofeed.Item, orgIDs map[string]string) (feed.VolunteerOpportunity, bool) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		logSkip(p.Logger, p.Name(), "entry has no id")
		return feed.VolunteerOpportunity{}, false
	}

	sponsor := "0"
	if name, _ := entryAuthor(item); name != "" && orgIDs[name] != "" {
		sponsor = orgIDs[name]
	}

	opp := feed.VolunteerOpportunity{
		ID:               id,
		SponsoringOrgIDs: []string{sponsor},
		Title:            item.Title,
		DetailURL:        id,
		Description:      wrapperDivRe.ReplaceAllString(item.Content, ""),
		Abstract:         stripEntities(item.Description),
		CategoryTags:     item.Categories,
	}

	if item.Published != "" {
		if ts, err := feed.CanonicalDateTime(item.Published); err == nil {
			opp.LastUpdated = &feed.TimeElement{Value: ts}
		}
	}
	if exp := p.ext(item, "g", "expiration_date"); exp != "" {
		if d, err := feed.CanonicalDate(exp); err == nil {
			opp.Expires = &feed.TimeElement{Value: d + "T23:59:59"}
		}
	}

	// Source stuffs the whole locale into a single location field.
	if loc := p.ext(item, "g", "location"); loc != "" {
		opp.Locations = []feed.Location{{City: loc}}
	}

	dur := feed.DateTimeDuration{OpenEnded: "No"}
	start, end := p.ext(item, "g", "start"), p.ext(item, "g", "end")
	if start == "" && end == "" {
		dur.OpenEnded = "Yes"
	}
	if start != "" {
		if d, err := feed.CanonicalDate(start); err == nil {
			dur.StartDate = d
		}
	}
	if end != "" {
		if d, err := feed.CanonicalDate(end); err == nil {
			dur.EndDate = d
		}
	}
	opp.Durations = []feed.DateTimeDuration{dur}

	if age, ok := feed.MinimumAgeFromBand(p.ext(item, "g", "age_range")); ok {
		opp.MinimumAge = &age
	}
	if paid := p.ext(item, "awb", "paid"); paid != "" {
		opp.Paid = paid
	}
	return opp, true
}

func (p *SolutionGrove) ext(item *gofeed.Item, ns, name string) string {
	vals, ok := item.Extensions[ns][name]
	if !ok || len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}

func entryAuthor(item *gofeed.Item) (name, uri string) {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name, ""
	}
	if item.Author != nil {
		return item.Author.Name, ""
	}
	return "", ""
}
