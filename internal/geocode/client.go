package geocode

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// accuracyLevels maps the service's location-type classification onto
// the 1-5 ordinal scale. Unknown types land on 1.
var accuracyLevels = map[string]int{
	"ROOFTOP":            5,
	"RANGE_INTERPOLATED": 4,
	"GEOMETRIC_CENTER":   3,
	"APPROXIMATE":        2,
}

// ErrExhausted means every attempt against the external service hit a
// transient failure. The query stays uncached so a later run retries.
var ErrExhausted = fmt.Errorf("geocode attempts exhausted")

// ClientConfig identifies this consumer to the geocoding service.
// PrivateKey is the base64url-encoded HMAC signing key issued with the
// client ID.
type ClientConfig struct {
	BaseURL    string
	ClientID   string
	PrivateKey string
	Region     string
	Attempts   int
	RetryDelay time.Duration
}

// Client issues signed requests to the external geocoding service.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client. httpClient may be nil for a default with
// a short timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://maps.googleapis.com"
	}
	if cfg.Region == "" {
		cfg.Region = "us"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// sign produces the URL signature for a path-and-query string.
func (c *Client) sign(pathAndQuery string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(c.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("decode signing key: %w", err)
	}
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(pathAndQuery))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) signedURL(path string, params url.Values) (string, error) {
	params.Set("sensor", "false")
	params.Set("client", c.cfg.ClientID)
	pathAndQuery := path + "?" + params.Encode()
	sig, err := c.sign(pathAndQuery)
	if err != nil {
		return "", err
	}
	return c.cfg.BaseURL + pathAndQuery + "&signature=" + sig, nil
}

type geocodeResponse struct {
	XMLName xml.Name `xml:"GeocodeResponse"`
	Status  string   `xml:"status"`
	Results []struct {
		FormattedAddress string `xml:"formatted_address"`
		Geometry         struct {
			LocationType string `xml:"location_type"`
			Location     struct {
				Lat string `xml:"lat"`
				Lng string `xml:"lng"`
			} `xml:"location"`
		} `xml:"geometry"`
	} `xml:"result"`
}

// Resolve queries the service for one address. Outcomes: a Result on
// success; (nil, nil) on a definitive no-such-place answer; an
// ErrExhausted-wrapped error after the transient-retry budget runs out.
func (c *Client) Resolve(ctx context.Context, query string) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
		res, transient, err := c.resolveOnce(ctx, query)
		if err == nil {
			return res, nil
		}
		if !transient {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("geocode attempt failed",
			zap.Int("attempt", attempt),
			zap.String("query", query),
			zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// resolveOnce classifies a single call. transient marks failures worth
// retrying; a definitive negative is (nil, false, nil).
func (c *Client) resolveOnce(ctx context.Context, query string) (res *Result, transient bool, err error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("region", c.cfg.Region)
	u, err := c.signedURL("/maps/api/geocode/xml", params)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("geocode request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("geocode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("geocode http status %d", resp.StatusCode)
	}

	var parsed geocodeResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, true, fmt.Errorf("unparseable geocode response: %w", err)
	}

	switch parsed.Status {
	case "OK":
	case "UNKNOWN_ERROR", "OVER_QUERY_LIMIT":
		return nil, true, fmt.Errorf("geocode status %s", parsed.Status)
	default:
		// ZERO_RESULTS and friends: the place does not exist.
		return nil, false, nil
	}
	if len(parsed.Results) == 0 {
		return nil, false, nil
	}

	first := parsed.Results[0]
	addr := strings.TrimSuffix(first.FormattedAddress, ", USA")
	accuracy, ok := accuracyLevels[first.Geometry.LocationType]
	if !ok {
		accuracy = 1
	}
	return &Result{
		Address:   addr,
		Latitude:  first.Geometry.Location.Lat,
		Longitude: first.Geometry.Location.Lng,
		Accuracy:  accuracy,
	}, false, nil
}
