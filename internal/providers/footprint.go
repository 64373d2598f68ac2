package providers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

// Footprint is the identity parser: its source already speaks the
// canonical schema, so parsing is passthrough plus defaulting and the
// record limit.
type Footprint struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time
}

// Name implements feed.Parser.
func (p *Footprint) Name() string { return "footprint" }

// Parse implements feed.Parser.
func (p *Footprint) Parse(raw []byte, maxRecords int, progress bool) (*feed.CanonicalFeed, feed.ParseStats, error) {
	in, err := feed.Unmarshal(raw)
	if err != nil {
		return nil, feed.ParseStats{}, fmt.Errorf("footprint: %w", err)
	}

	out := feed.New(p.Info)
	if p.Info.ProviderID == "" {
		// No replacement identity configured; keep the source's own.
		out.Info = in.Info
	}

	stats := feed.ParseStats{}
	out.Organizations = append(out.Organizations, in.Organizations...)
	stats.Organizations = len(out.Organizations)

	for _, opp := range in.Opportunities {
		if maxRecords > 0 && stats.Opportunities >= maxRecords {
			break
		}
		if opp.ID == "" {
			stats.Skipped++
			logSkip(p.Logger, p.Name(), "missing volunteerOpportunityID")
			continue
		}
		out.Opportunities = append(out.Opportunities, opp)
		stats.Opportunities++
		logProgress(p.Logger, p.Name(), progress, stats.Opportunities)
	}

	feed.NewNormalizer(p.Now).Normalize(out)
	return out, stats, nil
}

func logSkip(logger *zap.Logger, parser, reason string) {
	if logger != nil {
		logger.Warn("skipping malformed record",
			zap.String("parser", parser),
			zap.String("reason", reason),
		)
	}
}

func logProgress(logger *zap.Logger, parser string, progress bool, n int) {
	if logger == nil || !progress || n%250 != 0 {
		return
	}
	logger.Info("records generated", zap.String("parser", parser), zap.Int("opportunities", n))
}
