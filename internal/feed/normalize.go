package feed

import "time"

// Defaulting windows.
const defaultExpiration = 90 * 24 * time.Hour

// Timestamp renders t in the canonical feed timestamp form.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

// Normalizer fills required-but-missing fields with their defaults and
// resolves ambiguous timezones. Applying it twice yields the same
// document as applying it once; present values are never overwritten.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer builds a Normalizer around a clock, injected so tests
// can pin "now".
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize applies the defaulting rules in place.
func (n *Normalizer) Normalize(f *CanonicalFeed) {
	if f == nil {
		return
	}
	nowTS := Timestamp(n.now())

	if f.SchemaVersion == "" {
		f.SchemaVersion = SchemaVersion
	}
	if f.Info.FeedID == "" {
		f.Info.FeedID = "0"
	}
	f.Info.CreatedDateTime = defaultTimeElem(f.Info.CreatedDateTime, nowTS)

	for i := range f.Opportunities {
		n.normalizeOpportunity(&f.Opportunities[i], nowTS)
	}
}

func (n *Normalizer) normalizeOpportunity(opp *VolunteerOpportunity, nowTS string) {
	if opp.VolunteersNeeded == nil {
		needed := VolunteersUnknown
		opp.VolunteersNeeded = &needed
	}
	if opp.Paid == "" {
		opp.Paid = "No"
	}
	if opp.SexRestrictedTo == "" {
		opp.SexRestrictedTo = "Neither"
	}
	if opp.Language == "" {
		opp.Language = "English"
	}
	opp.LastUpdated = defaultTimeElem(opp.LastUpdated, nowTS)
	opp.Expires = defaultTimeElem(opp.Expires, Timestamp(n.now().Add(defaultExpiration)))

	// Zero locations or durations is a no-op, not an error.
	for i := range opp.Locations {
		loc := &opp.Locations[i]
		if loc.Virtual == "" {
			loc.Virtual = "No"
		}
		if loc.Country == "" {
			loc.Country = "US"
		}
	}

	for i := range opp.Durations {
		dur := &opp.Durations[i]
		if dur.ICalRecurrence == nil {
			empty := ""
			dur.ICalRecurrence = &empty
		}
		if dur.OpenEnded == "" {
			dur.OpenEnded = "No"
		}
		if dur.TimeFlexible == "" {
			if dur.HasExplicitTimes() {
				dur.TimeFlexible = "No"
			} else {
				dur.TimeFlexible = "Yes"
			}
		}
		dur.StartTime = defaultTZ(dur.StartTime)
		dur.EndTime = defaultTZ(dur.EndTime)
	}
}

// defaultTimeElem supplies a value when the element is missing and a
// timezone when the value lacks one.
func defaultTimeElem(el *TimeElement, value string) *TimeElement {
	if el == nil {
		el = &TimeElement{Value: value}
	}
	return defaultTZ(el)
}

func defaultTZ(el *TimeElement) *TimeElement {
	if el == nil {
		return nil
	}
	if el.OlsonTZ == "" {
		el.OlsonTZ = DefaultTZ
	}
	return el
}
