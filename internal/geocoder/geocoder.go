// Package geocoder resolves free-text addresses into structured location
// components for the board's location fan-out.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/logging"
)

// Result holds the structured components of a resolved address.
type Result struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	County  string `json:"county"`
	Country string `json:"country"`
}

// Geocoder resolves an address string. A failed resolution returns a typed
// error; callers must not treat it as an empty result.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://geocode.maps.co/search",
		Timeout: 10 * time.Second,
	}
}

// Client is an HTTP Geocoder with a small response cache; repeated writes of
// the same address (common during CSV imports) skip the provider round trip.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
}

// NewClient creates a geocoding client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	logging.ForService("geocoder").Info("geocoder client initialized", "base_url", config.BaseURL)

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: cache.New(time.Hour, 2*time.Hour),
	}
}

// providerResponse mirrors the provider's wire format.
type providerResponse struct {
	Results []struct {
		Address struct {
			City    string `json:"city"`
			State   string `json:"state"`
			Zip     string `json:"postcode"`
			County  string `json:"county"`
			Country string `json:"country"`
		} `json:"address"`
	} `json:"results"`
}

// Geocode resolves an address. Non-2xx responses and empty result sets both
// surface as geocoding errors so the triggering field update aborts instead
// of silently writing nothing.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	if address == "" {
		return Result{}, errors.Newf("address must not be empty").
			Component("geocoder").
			Category(errors.CategoryValidation).
			Build()
	}

	if cached, found := c.cache.Get(address); found {
		return cached.(Result), nil
	}

	endpoint := fmt.Sprintf("%s?q=%s&api_key=%s",
		c.config.BaseURL, url.QueryEscape(address), url.QueryEscape(c.config.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return Result{}, errors.New(err).
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Context("operation", "build_request").
			Build()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, errors.New(err).
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Context("operation", "request").
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, errors.Newf("geocoding provider returned status %d", resp.StatusCode).
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errors.New(err).
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Context("operation", "read_body").
			Build()
	}

	var parsed providerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, errors.New(err).
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Context("operation", "parse_body").
			Build()
	}

	if len(parsed.Results) == 0 {
		return Result{}, errors.Newf("no geocoding result for address").
			Component("geocoder").
			Category(errors.CategoryGeocoding).
			Build()
	}

	first := parsed.Results[0].Address
	result := Result{
		City:    first.City,
		State:   first.State,
		Zip:     first.Zip,
		County:  first.County,
		Country: first.Country,
	}

	c.cache.Set(address, result, cache.DefaultExpiration)
	return result, nil
}
