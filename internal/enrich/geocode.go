package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org/search"

	// ProviderNominatim is recorded as geocoding_source on jobs located
	// through the Nominatim client.
	ProviderNominatim = "nominatim"

	geocodeHTTPTimeout = 10 * time.Second

	// maxGeocodeBytes caps how much of a provider response is read.
	maxGeocodeBytes = 1 << 20
)

// Result is one resolved location.
type Result struct {
	Latitude   float64
	Longitude  float64
	City       string
	Country    string
	CountryISO string
	Provider   string
}

// Geocoder resolves a free-text location query to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// NominatimClient queries a Nominatim-compatible search endpoint.
type NominatimClient struct {
	searchURL string
	userAgent string
	email     string
	client    *http.Client
	log       logger.Interface
}

// NewNominatimClient builds a client for the configured provider. The
// user agent must identify the crawler; Nominatim rejects anonymous
// clients, and the optional contact email rides along on each query.
func NewNominatimClient(cfg *config.GeocodeConfig, userAgent string, log logger.Interface) *NominatimClient {
	searchURL := defaultNominatimURL
	email := ""
	if cfg != nil {
		if cfg.ProviderURL != "" {
			searchURL = cfg.ProviderURL
		}
		email = cfg.Email
	}
	if userAgent == "" {
		userAgent = "JobCrawl/1.0"
	}

	return &NominatimClient{
		searchURL: strings.TrimRight(searchURL, "/"),
		userAgent: userAgent,
		email:     email,
		client:    &http.Client{Timeout: geocodeHTTPTimeout},
		log:       log,
	}
}

// nominatimPlace is one entry of the provider's response array. The
// coordinates arrive as strings.
type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

// locality returns the most specific populated-place name in the
// address breakdown.
func (a nominatimAddress) locality() string {
	for _, name := range []string{a.City, a.Town, a.Village, a.Municipality} {
		if name != "" {
			return name
		}
	}
	return ""
}

// Geocode resolves a query against the search endpoint, returning a
// geocode.* taxonomy error on misses and provider failures.
func (c *NominatimClient) Geocode(ctx context.Context, query string) (*Result, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {"1"},
		"addressdetails": {"1"},
	}
	if c.email != "" {
		params.Set("email", c.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrGeocodeProviderError, false,
			fmt.Errorf("geocode: build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrGeocodeProviderError, true,
			fmt.Errorf("geocode: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewPipelineError(domain.ErrGeocodeRateLimited, true,
			fmt.Errorf("geocode: provider throttled the request"))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewPipelineError(domain.ErrGeocodeProviderError, resp.StatusCode >= 500,
			fmt.Errorf("geocode: unexpected status %d", resp.StatusCode))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeocodeBytes)).Decode(&places); err != nil {
		return nil, domain.NewPipelineError(domain.ErrGeocodeProviderError, false,
			fmt.Errorf("geocode: decode response: %w", err))
	}
	if len(places) == 0 {
		return nil, domain.NewPipelineError(domain.ErrGeocodeNoResult, false,
			fmt.Errorf("geocode: no match for %q", query))
	}

	place := places[0]
	lat, latErr := strconv.ParseFloat(place.Lat, 64)
	lon, lonErr := strconv.ParseFloat(place.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, domain.NewPipelineError(domain.ErrGeocodeProviderError, false,
			fmt.Errorf("geocode: bad coordinates %q,%q for %q", place.Lat, place.Lon, query))
	}

	c.log.Debug("Geocoded location",
		"query", query,
		"display_name", place.DisplayName,
	)

	return &Result{
		Latitude:   lat,
		Longitude:  lon,
		City:       place.Address.locality(),
		Country:    place.Address.Country,
		CountryISO: strings.ToUpper(place.Address.CountryCode),
		Provider:   ProviderNominatim,
	}, nil
}

// Interface conformance check.
var _ Geocoder = (*NominatimClient)(nil)
