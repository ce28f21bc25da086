package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

const defaultLocationIQURL = "https://us1.locationiq.com"

// LocationIQ is a keyed fallback provider. Its response shape matches
// Nominatim's.
type LocationIQ struct {
	key        string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// LocationIQOption configures the LocationIQ provider.
type LocationIQOption func(*LocationIQ)

// WithLocationIQBaseURL overrides the API base URL.
func WithLocationIQBaseURL(u string) LocationIQOption {
	return func(l *LocationIQ) { l.baseURL = u }
}

// WithLocationIQHTTPClient sets a custom HTTP client.
func WithLocationIQHTTPClient(hc *http.Client) LocationIQOption {
	return func(l *LocationIQ) { l.httpClient = hc }
}

// NewLocationIQ creates the provider. The free tier allows two requests per
// second.
func NewLocationIQ(key string, opts ...LocationIQOption) *LocationIQ {
	l := &LocationIQ{
		key:        key,
		baseURL:    defaultLocationIQURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Provider.
func (l *LocationIQ) Name() string { return "locationiq" }

// Available implements Provider.
func (l *LocationIQ) Available() bool { return l.key != "" }

// Resolve implements Provider.
func (l *LocationIQ) Resolve(ctx context.Context, name string) (*model.Coordinates, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq rate limit")
	}

	params := url.Values{
		"key":    {l.key},
		"q":      {name},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq build request")
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq request")
	}
	defer resp.Body.Close() //nolint:errcheck

	// LocationIQ answers 404 for an unmatched query.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: locationiq returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq read body")
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq parse response")
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq parse lat")
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: locationiq parse lon")
	}

	return &model.Coordinates{Lat: lat, Lng: lng, DisplayName: results[0].DisplayName}, nil
}
