package providers

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

// HelpingHands parses a vendor-specific XML export in which each
// VolunteerOpportunity block embeds its SponsoringOrganization records
// and any number of OpportunityDate blocks. Sponsors have no stable
// source IDs, so sequential IDs are fabricated while scanning, keyed by
// name+description.
type HelpingHands struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time
}

// Name implements feed.Parser.
func (p *HelpingHands) Name() string { return "helpinghands" }

// Parse implements feed.Parser.
func (p *HelpingHands) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(rewriteNamespaces(raw)))
	if err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("helpinghands: parse xml: %w", err)
	}
	opps := xmlquery.Find(doc, "//VolunteerOpportunity")
	if len(opps) == 0 {
		return nil, feed.ParseStats{}, fmt.Errorf("helpinghands: no VolunteerOpportunity records in payload")
	}

	out := feed.New(p.Info)
	stats := feed.ParseStats{}

	// Sponsors first so opportunity emission can resolve IDs.
	sponsorIDs := map[string]string{}
	for _, node := range xmlquery.Find(doc, "//SponsoringOrganization") {
		name := childText(node, "Name")
		desc := childText(node, "Description")
		key := name + desc
		if sponsorIDs[key] != "" {
			continue
		}
		id := strconv.Itoa(len(sponsorIDs) + 1)
		sponsorIDs[key] = id
		out.Organizations = append(out.Organizations, feed.Organization{
			ID:          id,
			Name:        name,
			Description: desc,
			Location:    &feed.OrgLocation{Country: childText(node, "Country")},
		})
		stats.Organizations++
	}

	for _, node := range opps {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		opp, ok := p.nodeToOpportunity(node, sponsorIDs)
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

func (p *HelpingHands) nodeToOpportunity(node *xmlquery.Node, sponsorIDs map[string]string) (feed.VolunteerOpportunity, bool) {
	id := childText(node, "LocalID")
	if id == "" {
		logSkip(p.Logger, p.Name(), "missing LocalID")
		return feed.VolunteerOpportunity{}, false
	}

	sponsor := "0"
	if org := xmlquery.FindOne(node, ".//SponsoringOrganization"); org != nil {
		if sid := sponsorIDs[childText(org, "Name")+childText(org, "Description")]; sid != "" {
			sponsor = sid
		}
	}

	needed := feed.VolunteersUnknown
	opp := feed.VolunteerOpportunity{
		ID:               id,
		SponsoringOrgIDs: []string{sponsor},
		Title:            childText(node, "Title"),
		DetailURL:        childText(node, "DetailURL"),
		Description:      childText(node, "Description"),
		VolunteersNeeded: &needed,
	}
	if opp.Abstract == "" {
		opp.Abstract = feed.AbstractFrom(opp.Description)
	}
	if listed := childText(node, "DateListed"); listed != "" {
		if d, err := feed.CanonicalDate(listed); err == nil {
			opp.LastUpdated = &feed.TimeElement{Value: d + "T00:00:00"}
		}
	}

	for _, loc := range xmlquery.Find(node, ".//Location") {
		opp.Locations = append(opp.Locations, feed.Location{
			StreetAddress1: childText(loc, "Address1"),
			StreetAddress2: childText(loc, "Address2"),
			City:           childText(loc, "City"),
			Region:         childText(loc, "StateOrProvince"),
			Country:        childText(loc, "Country"),
			PostalCode:     childText(loc, "ZipOrPostalCode"),
		})
	}

	// Every OpportunityDate becomes its own duration; none at all
	// leaves one open-ended window.
	for _, date := range xmlquery.Find(node, ".//OpportunityDate") {
		dur := feed.DateTimeDuration{
			OpenEnded: "No",
			StartDate: childText(date, "StartDate"),
			EndDate:   childText(date, "EndDate"),
		}
		if st := childText(date, "StartTime"); st != "" {
			dur.StartTime = &feed.TimeElement{Value: st}
		}
		if et := childText(date, "EndTime"); et != "" {
			dur.EndTime = &feed.TimeElement{Value: et}
		}
		opp.Durations = append(opp.Durations, dur)
	}
	if len(opp.Durations) == 0 {
		opp.Durations = []feed.DateTimeDuration{{OpenEnded: "Yes"}}
	}

	// Commitment quantities come in source units and are normalized
	// to hours per week; unit combinations we cannot convert are left
	// unset rather than guessed.
	if q := childText(node, "DurationQuantity"); q != "" {
		unit := childText(node, "DurationUnit")
		period := childText(node, "DurationPeriod")
		if hrs, ok := feed.HoursPerWeek(q, unit, period); ok {
			for i := range opp.Durations {
				opp.Durations[i].CommitmentHoursPerWeek = hrs
			}
		} else if p.Logger != nil {
			p.Logger.Warn("commitment given in unconvertible units",
				zap.String("parser", p.Name()),
				zap.String("unit", unit),
				zap.String("period", period),
			)
		}
	}
	return opp, true
}

func childText(node *xmlquery.Node, name string) string {
	child := xmlquery.FindOne(node, name)
	if child == nil {
		return ""
	}
	return child.InnerText()
}
