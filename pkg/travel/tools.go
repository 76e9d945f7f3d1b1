package travel

import (
	"context"
	"time"

	"github.com/go-go-golems/tessa/pkg/inference/tools"
	"github.com/go-go-golems/tessa/pkg/travel/amadeus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DateLayout = "2006-01-02"

type CurrentDateInput struct{}

type FlightSearchInput struct {
	Origin         string `json:"origin" jsonschema:"required,minLength=3,maxLength=3" jsonschema_description:"The 3-letter IATA airport code for the origin city. Example: 'BLR' for Bengaluru."`
	Destination    string `json:"destination" jsonschema:"required,minLength=3,maxLength=3" jsonschema_description:"The 3-letter IATA airport code for the destination city. Example: 'DXB' for Dubai."`
	DepartureDate  string `json:"departure_date" jsonschema:"required,pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$" jsonschema_description:"The single departure date, formatted as YYYY-MM-DD."`
	NumAdults      int    `json:"num_adults,omitempty" jsonschema:"minimum=1,default=1" jsonschema_description:"The total number of adult passengers. Defaults to 1 if not specified by the user."`
	NumChildren    int    `json:"num_children,omitempty" jsonschema:"minimum=0,default=0" jsonschema_description:"The total number of child passengers. Defaults to 0 if not specified by the user."`
	NonStop        bool   `json:"non_stop,omitempty" jsonschema:"default=true" jsonschema_description:"Whether the user wants a non-stop flight. Set to true unless the user explicitly asks for layovers."`
	MaximumResults int    `json:"maximum_results,omitempty" jsonschema:"minimum=1,maximum=250,default=10" jsonschema_description:"The maximum number of flight results to return. Defaults to 10."`
}

type HotelCitySearchInput struct {
	CityCode string `json:"city_code" jsonschema:"required,minLength=3,maxLength=3" jsonschema_description:"The IATA code for the city where to search for hotels (e.g. 'PAR' for Paris)."`
}

type HotelAreaSearchInput struct {
	PlaceName string   `json:"place_name,omitempty" jsonschema_description:"The name of the location or area (e.g. 'Eiffel Tower, Paris') for the hotel search."`
	Latitude  *float64 `json:"latitude,omitempty" jsonschema:"minimum=-90,maximum=90" jsonschema_description:"The latitude of the center point for the hotel search."`
	Longitude *float64 `json:"longitude,omitempty" jsonschema:"minimum=-180,maximum=180" jsonschema_description:"The longitude of the center point for the hotel search."`
	Radius    int      `json:"radius,omitempty" jsonschema:"minimum=1,default=2" jsonschema_description:"The radius in kilometers (KM) for the search area."`
}

var (
	flightDefaults = FlightSearchInput{NumAdults: 1, NumChildren: 0, NonStop: true, MaximumResults: 10}
	areaDefaults   = HotelAreaSearchInput{Radius: 2}
)

// Definitions builds the four travel tools on top of gw. now supplies the
// date for get_current_date.
func Definitions(gw *Gateway, now func() time.Time) ([]*tools.ToolDefinition, error) {
	if now == nil {
		now = time.Now
	}

	date, err := tools.NewTool("get_current_date",
		"Returns the current date as YYYY-MM-DD. Use this tool to resolve relative date queries like 'today', 'tomorrow', or 'next Tuesday'.",
		CurrentDateInput{},
		func(context.Context, CurrentDateInput) (string, error) {
			d := now().Format(DateLayout)
			log.Debug().Str("date", d).Msg("current date")
			return d, nil
		})
	if err != nil {
		return nil, err
	}

	flights, err := tools.NewTool("search_flights",
		"Searches for one-way flights based on the user's criteria. You MUST provide origin, destination, and departure_date.",
		flightDefaults,
		func(ctx context.Context, in FlightSearchInput) (interface{}, error) {
			return gw.SearchFlights(ctx, amadeus.FlightQuery{
				Origin:        in.Origin,
				Destination:   in.Destination,
				DepartureDate: in.DepartureDate,
				Adults:        in.NumAdults,
				Children:      in.NumChildren,
				NonStop:       in.NonStop,
				Max:           in.MaximumResults,
			}), nil
		})
	if err != nil {
		return nil, err
	}

	city, err := tools.NewTool("search_hotels_by_city",
		"Searches for hotels in a given city by its IATA code.",
		HotelCitySearchInput{},
		func(ctx context.Context, in HotelCitySearchInput) (interface{}, error) {
			return gw.SearchHotelsByCity(ctx, in.CityCode), nil
		})
	if err != nil {
		return nil, err
	}

	area, err := tools.NewTool("search_hotels_by_area",
		"Searches for hotels within a specific radius of a geographic coordinate or place name. Use this when a user wants to find hotels near a specific landmark or address.",
		areaDefaults,
		func(ctx context.Context, in HotelAreaSearchInput) (interface{}, error) {
			return gw.SearchHotelsByArea(ctx, AreaQuery{
				PlaceName: in.PlaceName,
				Latitude:  in.Latitude,
				Longitude: in.Longitude,
				Radius:    in.Radius,
			}), nil
		})
	if err != nil {
		return nil, err
	}

	return []*tools.ToolDefinition{date, flights, city, area}, nil
}

// RegisterTools registers the travel tools with reg, in a fixed order.
func RegisterTools(reg tools.Registry, gw *Gateway, now func() time.Time) error {
	defs, err := Definitions(gw, now)
	if err != nil {
		return errors.Wrap(err, "build travel tools")
	}
	for _, def := range defs {
		if err := reg.RegisterTool(def.Name, *def); err != nil {
			return err
		}
	}
	return nil
}
