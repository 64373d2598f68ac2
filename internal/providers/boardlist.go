package providers

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/crawler"
	"github.com/allforgood/datahub/internal/feed"
)

// BoardList parses the crawler's page cache for community bulletin
// boards that publish volunteer postings as plain HTML pages. The raw
// input is the cache file itself, one url-Q-page line per posting.
//
// Boards carry no organization records, so all postings hang off a
// single synthetic organization with ID 0.
type BoardList struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time

	// MetroLatLngs maps a board's base URL (everything before the
	// posting path) to "lat,lng" for coarse geolocation of postings.
	MetroLatLngs map[string]string
}

var (
	postingIDRe  = regexp.MustCompile(`/vol/(.+?)\.html$`)
	locationRe   = regexp.MustCompile(`Location: (.+?)<`)
	postedDateRe = regexp.MustCompile(`Date: (.+?)<`)
)

// redistribGrant is the phrase a poster includes to permit
// aggregation. Pages without it are skipped, not republished.
const redistribGrant = "it's OK to distribute this charitable volunteerism opportunity"

const minBodyLen = 25

// Name implements feed.Parser.
func (p *BoardList) Name() string { return "boardlist" }

// Parse implements feed.Parser. raw is a crawler page cache file.
func (p *BoardList) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	out := feed.New(p.Info)
	stats := feed.ParseStats{}

	out.Organizations = append(out.Organizations, feed.Organization{
		ID:       "0",
		Location: &feed.OrgLocation{},
	})
	stats.Organizations++

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lines := 0
	for scanner.Scan() {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		lines++
		url, page, ok := crawler.ParseCacheLine(scanner.Text())
		if !ok {
			continue
		}
		opp, reason := p.parsePosting(url, page)
		if opp == nil {
			stats.Skipped++
			logSkip(p.Logger, p.Name(), reason)
			continue
		}
		out.Opportunities = append(out.Opportunities, *opp)
		stats.Opportunities++
		logProgress(p.Logger, p.Name(), progress, stats.Opportunities)
	}
	if err := scanner.Err(); err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("boardlist: read cache: %w", err)
	}
	if lines == 0 {
		return nil, feed.ParseStats{}, fmt.Errorf("boardlist: empty page cache")
	}

	feed.NewNormalizer(p.Now).Normalize(out)
	return out, stats, nil
}

// parsePosting converts one cached page. A nil opportunity comes with
// the skip reason.
func (p *BoardList) parsePosting(url, page string) (*feed.VolunteerOpportunity, string) {
	if !strings.Contains(page, redistribGrant) {
		return nil, "no redistribution grant"
	}

	idMatch := postingIDRe.FindStringSubmatch(url)
	if idMatch == nil {
		return nil, "not a posting url"
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, "unparseable html"
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return nil, "no title"
	}
	body := userBodyText(doc)
	if len(body) < minBodyLen {
		return nil, "body too short"
	}

	opp := &feed.VolunteerOpportunity{
		ID:               idMatch[1],
		SponsoringOrgIDs: []string{"0"},
		Title:            title,
		DetailURL:        url,
		Description:      body,
		Abstract:         feed.AbstractFrom(body),
	}

	loc := feed.Location{}
	if m := locationRe.FindStringSubmatch(page); m != nil {
		loc.Name = strings.TrimSpace(m[1])
	}
	if latlng, ok := p.MetroLatLngs[metroBase(url)]; ok {
		if lat, lng, found := strings.Cut(latlng, ","); found {
			loc.Latitude = strings.TrimSpace(lat)
			loc.Longitude = strings.TrimSpace(lng)
		}
	}
	opp.Locations = []feed.Location{loc}

	dur := feed.DateTimeDuration{OpenEnded: "No"}
	if m := postedDateRe.FindStringSubmatch(page); m != nil {
		posted := strings.ReplaceAll(strings.TrimSpace(m[1]), ",", "")
		if ts, err := feed.CanonicalDateTime(posted); err == nil {
			dur.StartDate = ts[:10]
			opp.LastUpdated = &feed.TimeElement{Value: ts}
		}
	}
	opp.Durations = []feed.DateTimeDuration{dur}

	return opp, ""
}

// userBodyText returns the posting text: the leading text of the
// userbody div, before the boilerplate markup that follows it.
func userBodyText(doc *goquery.Document) string {
	var body string
	doc.Find("#userbody").First().Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "#text" {
			if text := strings.TrimSpace(s.Text()); text != "" {
				body = text
				return false
			}
		}
		return true
	})
	return body
}

// metroBase strips the posting path, leaving the per-metro base URL
// used as the latlng map key.
func metroBase(url string) string {
	if idx := strings.Index(url, "vol/"); idx >= 0 {
		return url[:idx]
	}
	return url
}

// LoadMetroLatLngs reads the metro-to-coordinates table: one
// `baseURL|lat|lng` per line, # comments and blank lines ignored.
// Unparseable lines are an error, the table is hand-maintained and a
// typo should be caught, not skipped.
func LoadMetroLatLngs(raw []byte) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad metro latlng line %q", line)
		}
		out[parts[0]] = parts[1] + "," + parts[2]
	}
	return out, scanner.Err()
}
