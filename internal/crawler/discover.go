package crawler

import (
	"bytes"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var (
	postingHrefRe = regexp.MustCompile(`/vol/.+\.html$`)
	indexHrefRe   = regexp.MustCompile(`^index\d+\.html$`)
)

// ListingDiscoverer finds crawlable links on board listing pages:
// posting detail pages under /vol/ and numbered index pages for
// pagination. Links to other hosts are ignored.
type ListingDiscoverer struct {
	Logger *zap.Logger
}

// Discover parses the page body and returns absolute URLs to enqueue.
func (d *ListingDiscoverer) Discover(pageURL string, body []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("unparseable page, skipping discovery",
				zap.String("url", pageURL), zap.Error(err))
		}
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !postingHrefRe.MatchString(href) && !indexHrefRe.MatchString(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host {
			return
		}
		abs.Fragment = ""
		s := abs.String()
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	})
	return out
}
