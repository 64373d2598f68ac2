package providers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

const maxBlankRows = 2

var (
	dateValRe = regexp.MustCompile(`^\d\d?/\d\d?/\d{4}`)
	timeValRe = regexp.MustCompile(`^\d?\d:\d\d(:\d\d)?`)
)

// Sheets parses a tab-delimited export whose header row is located by
// keyword sniffing, since partners rearrange and rename columns
// freely. Organizations have no source IDs; sequential IDs are
// fabricated per distinct sponsor name during the row scan.
type Sheets struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time
}

// Name implements feed.Parser.
func (p *Sheets) Name() string { return "sheets" }

// Parse implements feed.Parser.
func (p *Sheets) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("sheets: read tsv: %w", err)
	}

	headerRow, cols := findHeader(rows)
	if cols == nil {
		return nil, feed.ParseStats{}, fmt.Errorf("sheets: no header row found")
	}

	dataStart := headerRow + 1
	// Some exports carry a help row ("up to N words...") under the
	// header; skip it.
	if dataStart < len(rows) && strings.Contains(strings.ToLower(strings.Join(rows[dataStart], " ")), "up to") {
		dataStart++
	}

	out := feed.New(p.Info)
	stats := feed.ParseStats{}
	orgIDs := map[string]string{}
	var pending []pendingOpp

	// First pass over the data rows registers organizations so they
	// are fully emitted before any opportunity referencing them.
	blanks := 0
	for rowNum := dataStart; rowNum < len(rows); rowNum++ {
		record := rowToRecord(rows[rowNum], cols)
		if recordBlank(record) {
			blanks++
			if blanks >= maxBlankRows {
				break
			}
			continue
		}
		blanks = 0

		orgName := record["SponsoringOrganization"]
		if orgIDs[orgName] == "" {
			id := strconv.Itoa(len(orgIDs))
			orgIDs[orgName] = id
			out.Organizations = append(out.Organizations, feed.Organization{
				ID:              id,
				Name:            orgName,
				Location:        &feed.OrgLocation{},
				OrganizationURL: record["URL"],
			})
			stats.Organizations++
		}
		pending = append(pending, pendingOpp{row: rowNum, record: record})
	}

	for _, pend := range pending {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		opp, ok := p.recordToOpportunity(pend.row, pend.record, orgIDs)
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

type pendingOpp struct {
	row    int
	record map[string]string
}

func (p *Sheets) recordToOpportunity(row int, record map[string]string, orgIDs map[string]string) (feed.VolunteerOpportunity, bool) {
	title := record["OpportunityTitle"]
	if title == "" {
		logSkip(p.Logger, p.Name(), fmt.Sprintf("row %d: missing opportunity title", row))
		return feed.VolunteerOpportunity{}, false
	}

	opp := feed.VolunteerOpportunity{
		ID:               strconv.Itoa(row),
		SponsoringOrgIDs: []string{orgIDs[record["SponsoringOrganization"]]},
		Title:            title,
		Description:      record["Description"],
		DetailURL:        record["URL"],
		ContactName:      record["ContactName"],
		ContactEmail:     record["ContactEmail"],
		ContactPhone:     record["ContactPhone"],
	}
	if record["Skills"] != "" {
		opp.Skills = []string{record["Skills"]}
	}
	if record["Paid"] != "" {
		opp.Paid = yesNo(record["Paid"])
	}
	if record["SexRestrictedTo"] != "" {
		opp.SexRestrictedTo = record["SexRestrictedTo"]
	}
	if v, err := strconv.Atoi(record["MinimumAge"]); err == nil {
		opp.MinimumAge = &v
	}

	dur := feed.DateTimeDuration{}
	if strings.Contains(strings.ToLower(record["StartDate"]), "ongoing") {
		dur.OpenEnded = "Yes"
	} else {
		dur.OpenEnded = "No"
		// Invalid date or time values are dropped, not fatal to the
		// record.
		if v := validDate(record["StartDate"]); v != "" {
			dur.StartDate = v
		}
		if v := validTime(record["StartTime"]); v != "" {
			dur.StartTime = &feed.TimeElement{Value: v}
		}
		if v := validDate(record["EndDate"]); v != "" {
			dur.EndDate = v
		}
		if v := validTime(record["EndTime"]); v != "" {
			dur.EndTime = &feed.TimeElement{Value: v}
		}
	}
	recurrence := feed.RecurrenceFromFrequency(record["Frequency"])
	dur.ICalRecurrence = &recurrence
	if record["CommitmentHours"] != "" {
		dur.CommitmentHoursPerWeek = record["CommitmentHours"]
	}
	opp.Durations = []feed.DateTimeDuration{dur}

	opp.Locations = []feed.Location{{
		Name:           record["LocationName"],
		StreetAddress1: record["LocationStreet"],
		City:           record["LocationCity"],
		Region:         record["LocationProvince"],
		PostalCode:     record["LocationPostalCode"],
		Country:        record["LocationCountry"],
	}}
	return opp, true
}

// findHeader locates the header row by looking for "opportunity title"
// and maps column indexes to canonical field names by keyword.
func findHeader(rows [][]string) (int, map[int]string) {
	for rowNum, row := range rows {
		for _, cell := range row {
			norm := strings.ToLower(strings.Join(strings.Fields(cell), " "))
			if strings.Contains(norm, "opportunity title") {
				return rowNum, mapColumns(row)
			}
		}
	}
	return 0, nil
}

func mapColumns(header []string) map[int]string {
	cols := map[int]string{}
	for i, cell := range header {
		if name := fieldNameFor(cell); name != "" {
			cols[i] = name
		}
	}
	return cols
}

func fieldNameFor(header string) string {
	h := strings.ToLower(header)
	has := func(subs ...string) bool {
		for _, sub := range subs {
			if !strings.Contains(h, sub) {
				return false
			}
		}
		return true
	}
	switch {
	case has("title"):
		return "OpportunityTitle"
	case has("organization", "sponsor"):
		return "SponsoringOrganization"
	case has("description"):
		return "Description"
	case has("skills"):
		return "Skills"
	case has("location", "name"):
		return "LocationName"
	case has("street"):
		return "LocationStreet"
	case has("city"):
		return "LocationCity"
	case has("state"), has("province"):
		return "LocationProvince"
	case has("zip"), has("postal"):
		return "LocationPostalCode"
	case has("country"):
		return "LocationCountry"
	case has("start", "date"):
		return "StartDate"
	case has("start", "time"):
		return "StartTime"
	case has("end", "date"):
		return "EndDate"
	case has("end", "time"):
		return "EndTime"
	case has("contact", "name"):
		return "ContactName"
	case has("email"), has("e-mail"):
		return "ContactEmail"
	case has("phone"):
		return "ContactPhone"
	case has("website"), has("url"):
		return "URL"
	case has("often"):
		return "Frequency"
	case has("paid"):
		return "Paid"
	case has("commitment"), has("hours"):
		return "CommitmentHours"
	case has("age", "min"):
		return "MinimumAge"
	case has("sex"), has("gender"):
		return "SexRestrictedTo"
	default:
		return ""
	}
}

func rowToRecord(row []string, cols map[int]string) map[string]string {
	record := map[string]string{}
	for i, name := range cols {
		if i < len(row) {
			record[name] = strings.Join(strings.Fields(row[i]), " ")
		}
	}
	return record
}

func recordBlank(record map[string]string) bool {
	for _, v := range record {
		if v != "" {
			return false
		}
	}
	return true
}

func validDate(v string) string {
	if !dateValRe.MatchString(v) {
		return ""
	}
	d, err := feed.CanonicalDate(v)
	if err != nil {
		return ""
	}
	return d
}

func validTime(v string) string {
	if timeValRe.MatchString(v) {
		return v
	}
	return ""
}

func yesNo(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), "yes") {
		return "Yes"
	}
	return "No"
}
