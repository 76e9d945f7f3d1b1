// Package travel exposes flight and hotel search to the tool layer. Every
// outbound failure is turned into a human-readable string here, so nothing
// past this boundary has to deal with transport or provider errors.
package travel

import (
	"context"
	"fmt"

	"github.com/go-go-golems/tessa/pkg/travel/amadeus"
	"github.com/go-go-golems/tessa/pkg/travel/geocode"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const MsgClientNotInitialized = "Amadeus client is not initialized. Check API credentials."

// Provider is the travel search backend.
type Provider interface {
	FlightOffers(ctx context.Context, q amadeus.FlightQuery) ([]amadeus.Record, error)
	HotelsByCity(ctx context.Context, cityCode string) ([]amadeus.Record, error)
	HotelsByGeocode(ctx context.Context, q amadeus.GeoQuery) ([]amadeus.Record, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, place string) (geocode.Coordinates, bool, error)
}

var (
	_ Provider = (*amadeus.Client)(nil)
	_ Geocoder = (*geocode.Nominatim)(nil)
)

// Gateway answers searches with either the provider's records or an error
// string. A nil provider means credentials were missing at startup.
type Gateway struct {
	provider Provider
	geocoder Geocoder
}

func NewGateway(provider Provider, geocoder Geocoder) *Gateway {
	return &Gateway{provider: provider, geocoder: geocoder}
}

// AreaQuery locates a hotel search either by coordinates or by place name.
type AreaQuery struct {
	PlaceName string
	Latitude  *float64
	Longitude *float64
	Radius    int
}

func (g *Gateway) SearchFlights(ctx context.Context, q amadeus.FlightQuery) interface{} {
	if g.provider == nil {
		return MsgClientNotInitialized
	}
	log.Debug().
		Str("origin", q.Origin).
		Str("destination", q.Destination).
		Str("departure_date", q.DepartureDate).
		Int("adults", q.Adults).
		Int("children", q.Children).
		Bool("non_stop", q.NonStop).
		Int("max", q.Max).
		Msg("searching flights")

	recs, err := g.provider.FlightOffers(ctx, q)
	if err != nil {
		return searchFailure(err, "searching for flights", "flight search")
	}
	return recs
}

func (g *Gateway) SearchHotelsByCity(ctx context.Context, cityCode string) interface{} {
	if g.provider == nil {
		return MsgClientNotInitialized
	}
	log.Debug().Str("city_code", cityCode).Msg("searching hotels in city")

	recs, err := g.provider.HotelsByCity(ctx, cityCode)
	if err != nil {
		return searchFailure(err, "searching for hotels", "hotel search")
	}
	return recs
}

// SearchHotelsByArea geocodes the place name only when no coordinate was
// given; given coordinates always win over the place name.
func (g *Gateway) SearchHotelsByArea(ctx context.Context, q AreaQuery) interface{} {
	lat, lon := q.Latitude, q.Longitude

	if q.PlaceName != "" && lat == nil && lon == nil {
		coords, found := g.geocode(ctx, q.PlaceName)
		if !found {
			return fmt.Sprintf("Error: Could not find the coordinates for the location '%s'. Please try a different or more specific landmark.", q.PlaceName)
		}
		lat, lon = &coords.Latitude, &coords.Longitude
	}

	if lat == nil || lon == nil {
		return "Error: Cannot search for hotels without a valid location. Please provide a place_name or valid latitude/longitude."
	}

	if g.provider == nil {
		return MsgClientNotInitialized
	}
	log.Debug().Float64("lat", *lat).Float64("lon", *lon).Int("radius_km", q.Radius).Msg("searching hotels by area")

	recs, err := g.provider.HotelsByGeocode(ctx, amadeus.GeoQuery{Latitude: *lat, Longitude: *lon, Radius: q.Radius})
	if err != nil {
		return searchFailure(err, "searching for hotels by area", "hotel area search")
	}
	return recs
}

// geocode treats lookup failures as a miss.
func (g *Gateway) geocode(ctx context.Context, place string) (geocode.Coordinates, bool) {
	if g.geocoder == nil {
		log.Warn().Str("place", place).Msg("no geocoder configured")
		return geocode.Coordinates{}, false
	}
	coords, found, err := g.geocoder.Geocode(ctx, place)
	if err != nil {
		log.Warn().Err(err).Str("place", place).Msg("geocoding failed")
		return geocode.Coordinates{}, false
	}
	if !found {
		log.Warn().Str("place", place).Msg("could not geocode place")
	}
	return coords, found
}

func searchFailure(err error, action, kind string) string {
	var apiErr *amadeus.APIError
	if errors.As(err, &apiErr) {
		log.Warn().Err(err).Str("search", kind).Msg("provider returned an error")
		return fmt.Sprintf("An error occurred while %s: %s", action, apiErr.Description())
	}
	log.Error().Err(err).Str("search", kind).Msg("unexpected error during search")
	return fmt.Sprintf("An unexpected error occurred during the %s.", kind)
}
