package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ReverseResult is the locale description for a coordinate pair.
type ReverseResult struct {
	Status    string `json:"status"`
	Formatted string `json:"formatted_address,omitempty"`
}

type reverseResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// ReverseGeocoder maps coordinates back to a human locale description.
// Answers are cached one file per rounded coordinate pair, so points
// within ~10m share an entry. "OK" and "ZERO_RESULTS" are cacheable;
// "OVER_QUERY_LIMIT" is not.
type ReverseGeocoder struct {
	client   *Client
	cacheDir string
	logger   *zap.Logger
}

// NewReverseGeocoder stores answers under cacheDir.
func NewReverseGeocoder(client *Client, cacheDir string, logger *zap.Logger) *ReverseGeocoder {
	return &ReverseGeocoder{client: client, cacheDir: cacheDir, logger: logger}
}

// cacheKey derives the per-coordinate filename: hemisphere letter plus
// the absolute value rounded to 4 decimals, dots replaced so the key
// is filesystem-safe.
func cacheKey(lat, lng float64) string {
	coord := func(v float64, pos, neg string) string {
		hemi := pos
		if v < 0 {
			hemi = neg
		}
		s := strconv.FormatFloat(math.Round(math.Abs(v)*10000)/10000, 'f', -1, 64)
		return hemi + strings.ReplaceAll(s, ".", "_")
	}
	return "Glat" + coord(lat, "N", "S") + "lng" + coord(lng, "E", "W") + ".json"
}

// Reverse resolves (lat,lng) to a locale description, cache-first.
func (r *ReverseGeocoder) Reverse(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	path := filepath.Join(r.cacheDir, cacheKey(lat, lng))
	if raw, err := os.ReadFile(path); err == nil {
		var cached ReverseResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		r.logger.Warn("corrupt reverse geocode cache entry", zap.String("path", path))
	}

	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	u, err := r.client.signedURL("/maps/api/geocode/json", params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reverse geocode response: %w", err)
	}

	var parsed reverseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unparseable reverse geocode response: %w", err)
	}

	result := &ReverseResult{Status: parsed.Status}
	if len(parsed.Results) > 0 {
		result.Formatted = parsed.Results[0].FormattedAddress
	}

	switch parsed.Status {
	case "OK", "ZERO_RESULTS":
		if err := r.writeCache(path, result); err != nil {
			r.logger.Error("reverse geocode cache write failed", zap.Error(err))
		}
	case "OVER_QUERY_LIMIT":
		r.logger.Warn("reverse geocode over query limit, not caching",
			zap.Float64("lat", lat), zap.Float64("lng", lng))
	}
	return result, nil
}

func (r *ReverseGeocoder) writeCache(path string, result *ReverseResult) error {
	if err := os.MkdirAll(r.cacheDir, 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
