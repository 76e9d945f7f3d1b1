package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocodeParsesFirstMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Eiffel Tower, Paris", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[{"lat":"48.8582599","lon":"2.2945006","display_name":"Tour Eiffel"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(WithBaseURL(srv.URL))
	c, found, err := n.Geocode(context.Background(), "Eiffel Tower, Paris")
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 48.8582599, c.Latitude, 1e-9)
	assert.InDelta(t, 2.2945006, c.Longitude, 1e-9)
}

func TestGeocodeMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, found, err := NewNominatim(WithBaseURL(srv.URL), WithUserAgent("test")).Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGeocodeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, found, err := NewNominatim(WithBaseURL(srv.URL)).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, found)
}
