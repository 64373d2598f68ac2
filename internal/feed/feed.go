// Package feed defines the canonical FootprintFeed document model that
// every provider parser converts into, along with the parser contract
// and the defaulting engine applied after parsing.
package feed

import (
	"encoding/xml"
	"fmt"
)

// SchemaVersion is the canonical feed schema revision emitted in the
// FootprintFeed root attribute.
const SchemaVersion = "0.1"

// VolunteersUnknown is the sentinel for "volunteers needed" when the
// source does not provide a count. It is preserved verbatim through the
// pipeline and must never be collapsed to zero.
const VolunteersUnknown = -8888

// DefaultTZ is the olsonTZ attribute attached to any time-bearing
// element that arrives without an explicit timezone.
const DefaultTZ = "America/Los_Angeles"

// TimeElement is a timestamp element carrying an optional olsonTZ
// attribute. The zero OlsonTZ means the source left the timezone
// ambiguous; Normalize resolves it to DefaultTZ.
type TimeElement struct {
	OlsonTZ string `xml:"olsonTZ,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// FeedInfo identifies the provider that produced a feed. Created once
// per ingestion run and immutable afterward.
type FeedInfo struct {
	ProviderID      string       `xml:"providerID"`
	ProviderName    string       `xml:"providerName"`
	FeedID          string       `xml:"feedID"`
	CreatedDateTime *TimeElement `xml:"createdDateTime,omitempty"`
	ProviderURL     string       `xml:"providerURL"`
	Description     string       `xml:"description,omitempty"`
}

// OrgLocation is the coarse city/region/postal location attached to an
// Organization record.
type OrgLocation struct {
	City       string `xml:"city"`
	Region     string `xml:"region"`
	PostalCode string `xml:"postalCode"`
	Country    string `xml:"country,omitempty"`
}

// Organization is a sponsor record. Organizations are always emitted
// before the opportunities that reference them so ID lookups resolve.
type Organization struct {
	ID               string       `xml:"organizationID"`
	NationalEIN      string       `xml:"nationalEIN"`
	GuidestarID      string       `xml:"guidestarID,omitempty"`
	Name             string       `xml:"name"`
	MissionStatement string       `xml:"missionStatement"`
	Description      string       `xml:"description"`
	Location         *OrgLocation `xml:"location,omitempty"`
	OrganizationURL  string       `xml:"organizationURL"`
	DonateURL        string       `xml:"donateURL"`
	LogoURL          string       `xml:"logoURL"`
	DetailURL        string       `xml:"detailURL"`
}

// Location is a place an opportunity happens at. Latitude and
// Longitude stay empty until the geocoding pass fills them in.
type Location struct {
	Name           string `xml:"name,omitempty"`
	StreetAddress1 string `xml:"streetAddress1,omitempty"`
	StreetAddress2 string `xml:"streetAddress2,omitempty"`
	City           string `xml:"city,omitempty"`
	Region         string `xml:"region,omitempty"`
	PostalCode     string `xml:"postalCode,omitempty"`
	Country        string `xml:"country,omitempty"`
	LocationString string `xml:"location_string,omitempty"`
	Virtual        string `xml:"virtual,omitempty"`
	Latitude       string `xml:"latitude,omitempty"`
	Longitude      string `xml:"longitude,omitempty"`
}

// DateTimeDuration describes one scheduled window of an opportunity.
// Opportunities may carry any number of them; sources that emit exactly
// one are a convention, not an invariant.
type DateTimeDuration struct {
	OpenEnded              string       `xml:"openEnded,omitempty"`
	Duration               string       `xml:"duration,omitempty"`
	CommitmentHoursPerWeek string       `xml:"commitmentHoursPerWeek,omitempty"`
	ICalRecurrence         *string      `xml:"iCalRecurrence"`
	StartDate              string       `xml:"startDate,omitempty"`
	EndDate                string       `xml:"endDate,omitempty"`
	StartTime              *TimeElement `xml:"startTime,omitempty"`
	EndTime                *TimeElement `xml:"endTime,omitempty"`
	TimeFlexible           string       `xml:"timeFlexible,omitempty"`
}

// HasExplicitTimes reports whether the source provided a start or end
// time of day. Absence of both makes the window time-flexible.
func (d *DateTimeDuration) HasExplicitTimes() bool {
	return d.StartTime != nil || d.EndTime != nil
}

// VolunteerOpportunity is one listing in canonical form. It is created
// by exactly one parser invocation per run and, after defaulting, only
// touched by the geocoding enrichment write.
type VolunteerOpportunity struct {
	ID               string             `xml:"volunteerOpportunityID"`
	SponsoringOrgIDs []string           `xml:"sponsoringOrganizationIDs>sponsoringOrganizationID"`
	Title            string             `xml:"title"`
	DetailURL        string             `xml:"detailURL"`
	Description      string             `xml:"description"`
	Abstract         string             `xml:"abstract,omitempty"`
	VolunteersNeeded *int               `xml:"volunteersNeeded,omitempty"`
	MinimumAge       *int               `xml:"minimumAge,omitempty"`
	Paid             string             `xml:"paid,omitempty"`
	SexRestrictedTo  string             `xml:"sexRestrictedTo,omitempty"`
	Language         string             `xml:"language,omitempty"`
	Durations        []DateTimeDuration `xml:"dateTimeDurations>dateTimeDuration"`
	Locations        []Location         `xml:"locations>location"`
	CategoryTags     []string           `xml:"categoryTags>categoryTag"`
	AudienceTags     []string           `xml:"audienceTags>audienceTag"`
	Skills           []string           `xml:"skills>skill"`
	ContactName      string             `xml:"contactName,omitempty"`
	ContactEmail     string             `xml:"contactEmail,omitempty"`
	ContactPhone     string             `xml:"contactPhone,omitempty"`
	LastUpdated      *TimeElement       `xml:"lastUpdated,omitempty"`
	Expires          *TimeElement       `xml:"expires,omitempty"`
}

// CanonicalFeed is the root document handed to the downstream indexer.
type CanonicalFeed struct {
	XMLName       xml.Name               `xml:"FootprintFeed"`
	SchemaVersion string                 `xml:"schemaVersion,attr"`
	Info          FeedInfo               `xml:"FeedInfo"`
	Organizations []Organization         `xml:"Organizations>Organization"`
	Opportunities []VolunteerOpportunity `xml:"VolunteerOpportunities>VolunteerOpportunity"`
}

// New returns an empty canonical feed with provider identity filled in.
func New(info FeedInfo) *CanonicalFeed {
	return &CanonicalFeed{
		SchemaVersion: SchemaVersion,
		Info:          info,
	}
}

// Marshal renders the feed as a standalone XML document.
func (f *CanonicalFeed) Marshal() ([]byte, error) {
	body, err := xml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical feed: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Unmarshal parses a canonical feed document.
func Unmarshal(raw []byte) (*CanonicalFeed, error) {
	var f CanonicalFeed
	if err := xml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal canonical feed: %w", err)
	}
	return &f, nil
}

// OrganizationIDs returns the set of organization IDs present in the
// feed, for validating opportunity sponsor references.
func (f *CanonicalFeed) OrganizationIDs() map[string]bool {
	ids := make(map[string]bool, len(f.Organizations))
	for _, org := range f.Organizations {
		ids[org.ID] = true
	}
	return ids
}

// DanglingSponsorRefs counts opportunity sponsor references that do not
// resolve to an organization in the same document. These are tolerated
// downstream but reported as a data-quality defect.
func (f *CanonicalFeed) DanglingSponsorRefs() int {
	ids := f.OrganizationIDs()
	dangling := 0
	for _, opp := range f.Opportunities {
		for _, ref := range opp.SponsoringOrgIDs {
			if !ids[ref] {
				dangling++
			}
		}
	}
	return dangling
}

// Parser converts one source's raw payload into a canonical feed.
//
// maxRecords <= 0 means unlimited; reaching the limit truncates the
// document without error. Individual malformed records are skipped and
// counted, never fatal. A non-nil error means the payload could not be
// interpreted as the source format at all.
type Parser interface {
	Name() string
	Parse(raw []byte, maxRecords int, progress bool) (*CanonicalFeed, ParseStats, error)
}

// ParseStats reports what a parse emitted and what it skipped.
type ParseStats struct {
	Organizations int
	Opportunities int
	Skipped       int
}
