// Package amadeus is a small client for the Amadeus Self-Service REST API,
// covering flight offers and hotel reference data.
package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://test.api.amadeus.com"
	tokenPath      = "/v1/security/oauth2/token"
)

// ErrMissingCredentials is returned by NewClient when the client id or
// secret is empty.
var ErrMissingCredentials = errors.New("amadeus client id and secret are required")

// Record is one element of a response's data array, kept as decoded.
type Record = map[string]interface{}

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	// HTTPClient is used both for token requests and as the base transport.
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: cc.Client(ctx),
	}, nil
}

type FlightQuery struct {
	Origin        string
	Destination   string
	DepartureDate string
	Adults        int
	Children      int
	NonStop       bool
	Max           int
}

type GeoQuery struct {
	Latitude  float64
	Longitude float64
	// Radius in kilometers.
	Radius int
}

// FlightOffers searches one-way flight offers.
func (c *Client) FlightOffers(ctx context.Context, q FlightQuery) ([]Record, error) {
	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.DepartureDate)
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("children", strconv.Itoa(q.Children))
	params.Set("nonStop", strconv.FormatBool(q.NonStop))
	params.Set("max", strconv.Itoa(q.Max))
	return c.get(ctx, "/v2/shopping/flight-offers", params)
}

func (c *Client) HotelsByCity(ctx context.Context, cityCode string) ([]Record, error) {
	params := url.Values{}
	params.Set("cityCode", cityCode)
	return c.get(ctx, "/v1/reference-data/locations/hotels/by-city", params)
}

func (c *Client) HotelsByGeocode(ctx context.Context, q GeoQuery) ([]Record, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(q.Radius))
	params.Set("radiusUnit", "KM")
	return c.get(ctx, "/v1/reference-data/locations/hotels/by-geocode", params)
}

type dataResponse struct {
	Data []Record `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]Record, error) {
	u := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("path", path).Str("query", params.Encode()).Msg("amadeus request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, apiErrorFromToken(re)
		}
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromBody(resp.StatusCode, body)
	}

	var dr dataResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if dr.Data == nil {
		dr.Data = []Record{}
	}
	log.Debug().Str("path", path).Int("records", len(dr.Data)).Msg("amadeus response")
	return dr.Data, nil
}

// APIError is a non-2xx answer from the provider, decoded from its errors array.
type APIError struct {
	StatusCode int
	Errors     []ErrorItem
}

type ErrorItem struct {
	Status int
	Code   int
	Title  string
	Detail string
}

// Description renders the provider errors as one human-readable line.
func (e *APIError) Description() string {
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		switch {
		case item.Title != "" && item.Detail != "":
			parts = append(parts, item.Title+": "+item.Detail)
		case item.Title != "":
			parts = append(parts, item.Title)
		case item.Detail != "":
			parts = append(parts, item.Detail)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("[%d] %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, strings.Join(parts, "; "))
}

func (e *APIError) Error() string {
	return "amadeus: " + e.Description()
}

type errorResponse struct {
	Errors []struct {
		Status interface{} `json:"status"`
		Code   interface{} `json:"code"`
		Title  string      `json:"title"`
		Detail string      `json:"detail"`
	} `json:"errors"`
	// token endpoint errors
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func apiErrorFromBody(status int, body []byte) *APIError {
	ret := &APIError{StatusCode: status}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ret
	}
	for _, item := range er.Errors {
		ret.Errors = append(ret.Errors, ErrorItem{
			Status: cast.ToInt(item.Status),
			Code:   cast.ToInt(item.Code),
			Title:  item.Title,
			Detail: item.Detail,
		})
	}
	if len(ret.Errors) == 0 && (er.Error != "" || er.ErrorDescription != "") {
		ret.Errors = append(ret.Errors, ErrorItem{Status: status, Title: er.Error, Detail: er.ErrorDescription})
	}
	return ret
}

func apiErrorFromToken(re *oauth2.RetrieveError) *APIError {
	status := http.StatusUnauthorized
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if len(re.Body) > 0 {
		if ret := apiErrorFromBody(status, re.Body); len(ret.Errors) > 0 {
			return ret
		}
	}
	return &APIError{StatusCode: status, Errors: []ErrorItem{{Status: status, Title: re.ErrorCode, Detail: re.ErrorDescription}}}
}
