package providers

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

// ServiceBurst parses an RSS feed whose items carry a custom db:
// extension namespace for event, venue, and scheduling data. The
// source has one implicit sponsor, represented by a single synthetic
// organization.
type ServiceBurst struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time
}

// Name implements feed.Parser.
func (p *ServiceBurst) Name() string { return "serviceburst" }

// Parse implements feed.Parser.
func (p *ServiceBurst) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	src, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("serviceburst: parse rss: %w", err)
	}

	out := feed.New(p.Info)
	out.Organizations = []feed.Organization{syntheticOrg()}
	stats := feed.ParseStats{Organizations: 1}

	for _, item := range src.Items {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		opp, ok := p.itemToOpportunity(item)
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

func (p *ServiceBurst) itemToOpportunity(item *gofeed.Item) (feed.VolunteerOpportunity, bool) {
	if item.GUID == "" {
		logSkip(p.Logger, p.Name(), "item has no guid")
		return feed.VolunteerOpportunity{}, false
	}

	needed := feed.VolunteersUnknown
	opp := feed.VolunteerOpportunity{
		ID:               item.GUID,
		SponsoringOrgIDs: []string{"0"},
		Title:            item.Title,
		Abstract:         p.ext(item, "abstract"),
		DetailURL:        item.Link,
		Description:      item.Description,
		ContactName:      p.ext(item, "host"),
		VolunteersNeeded: &needed,
	}

	if t := p.ext(item, "eventType"); t != "" {
		opp.CategoryTags = []string{t}
	}
	if pub := item.Published; pub != "" {
		if ts, err := feed.CanonicalDateTime(pub); err == nil {
			opp.LastUpdated = &feed.TimeElement{Value: ts}
		}
	}

	dur, ok := p.scheduledDuration(item)
	if !ok {
		return feed.VolunteerOpportunity{}, false
	}
	opp.Durations = []feed.DateTimeDuration{dur}

	addrs, ok := item.Extensions["db"]["address"]
	if !ok || len(addrs) == 0 {
		logSkip(p.Logger, p.Name(), "item has no address")
		return feed.VolunteerOpportunity{}, false
	}
	addr := addrs[0].Children
	opp.Locations = []feed.Location{{
		Name:           p.ext(item, "venue_name"),
		StreetAddress1: childValue(addr, "street"),
		City:           childValue(addr, "city"),
		Region:         childValue(addr, "state"),
		Country:        childValue(addr, "country"),
		PostalCode:     childValue(addr, "zipcode"),
		Latitude:       p.ext(item, "latitude"),
		Longitude:      p.ext(item, "longitude"),
	}}
	return opp, true
}

// The db:scheduledTime block nests a db:dateTime of the form
// "YYYY-MM-DD HH:MM:SS"; a db:length of -1 or none at all marks the
// event open-ended.
func (p *ServiceBurst) scheduledDuration(item *gofeed.Item) (feed.DateTimeDuration, bool) {
	blocks, ok := item.Extensions["db"]["scheduledTime"]
	if !ok || len(blocks) == 0 {
		logSkip(p.Logger, p.Name(), "item has no scheduledTime")
		return feed.DateTimeDuration{}, false
	}
	sched := blocks[0]
	when := childValue(sched.Children, "dateTime")
	if when == "" {
		logSkip(p.Logger, p.Name(), "scheduledTime has no dateTime")
		return feed.DateTimeDuration{}, false
	}
	dur := feed.DateTimeDuration{OpenEnded: "No"}
	if length := childValue(sched.Children, "length"); length == "" || length == "-1" {
		dur.OpenEnded = "Yes"
	}
	parts := strings.SplitN(when, " ", 2)
	dur.StartDate = parts[0]
	if len(parts) == 2 {
		dur.StartTime = &feed.TimeElement{Value: parts[1]}
	}
	return dur, true
}

func (p *ServiceBurst) ext(item *gofeed.Item, name string) string {
	vals, ok := item.Extensions["db"][name]
	if !ok || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0].Value)
}

func childValue(children map[string][]ext.Extension, name string) string {
	vals, ok := children[name]
	if !ok || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0].Value)
}

func syntheticOrg() feed.Organization {
	return feed.Organization{
		ID:       "0",
		Location: &feed.OrgLocation{},
	}
}
