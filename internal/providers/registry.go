package providers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/feed"
)

// Options carries the shared knobs every parser takes.
type Options struct {
	Info   feed.FeedInfo
	Logger *zap.Logger
	Now    func() time.Time

	// MetroLatLngs is only consulted by the boardlist parser.
	MetroLatLngs map[string]string
}

// New returns the parser for a source kind. The set is closed; an
// unknown kind is a configuration error, not a fallback.
func New(kind string, opts Options) (feed.Parser, error) {
	switch kind {
	case "footprint":
		return &Footprint{Info: opts.Info, Logger: opts.Logger, Now: opts.Now}, nil
	case "solutiongrove":
		return &SolutionGrove{Info: opts.Info, Logger: opts.Logger, Now: opts.Now}, nil
	case "serviceburst":
		return &ServiceBurst{Info: opts.Info, Logger: opts.Logger, Now: opts.Now}, nil
	case "helpinghands":
		return &HelpingHands{Info: opts.Info, Logger: opts.Logger, Now: opts.Now}, nil
	case "sheets":
		return &Sheets{Info: opts.Info, Logger: opts.Logger, Now: opts.Now}, nil
	case "boardlist":
		return &BoardList{Info: opts.Info, Logger: opts.Logger, Now: opts.Now, MetroLatLngs: opts.MetroLatLngs}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// Kinds lists the supported source kinds, for CLI help and config
// validation.
func Kinds() []string {
	return []string{"footprint", "solutiongrove", "serviceburst", "helpinghands", "sheets", "boardlist"}
}
