// Package geocode resolves free-text place names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "TravelAgentApp"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Nominatim geocodes through the OpenStreetMap Nominatim search API.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

type Option func(*Nominatim)

func WithBaseURL(u string) Option {
	return func(n *Nominatim) {
		if u != "" {
			n.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header, which the service's usage
// policy requires to identify the application.
func WithUserAgent(ua string) Option {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Nominatim) {
		if c != nil {
			n.httpClient = c
		}
	}
}

func NewNominatim(options ...Option) *Nominatim {
	ret := &Nominatim{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: http.DefaultClient,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

type place struct {
	Lat         interface{} `json:"lat"`
	Lon         interface{} `json:"lon"`
	DisplayName string      `json:"display_name"`
}

// Geocode returns the coordinates of the best match for query. found is
// false when the service has no match.
func (n *Nominatim) Geocode(ctx context.Context, query string) (Coordinates, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, false, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Coordinates{}, false, errors.Wrap(err, "geocode request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, false, errors.Errorf("geocode request failed: %s", resp.Status)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinates{}, false, errors.Wrap(err, "decode geocode response")
	}
	if len(places) == 0 {
		return Coordinates{}, false, nil
	}

	lat, err := cast.ToFloat64E(places[0].Lat)
	if err != nil {
		return Coordinates{}, false, errors.Wrap(err, "parse latitude")
	}
	lon, err := cast.ToFloat64E(places[0].Lon)
	if err != nil {
		return Coordinates{}, false, errors.Wrap(err, "parse longitude")
	}

	log.Debug().Str("query", query).Str("match", places[0].DisplayName).Float64("lat", lat).Float64("lon", lon).Msg("geocoded place")
	return Coordinates{Latitude: lat, Longitude: lon}, true, nil
}
