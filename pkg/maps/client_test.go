package maps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("test-key", WithHTTPClient(srv.Client()), WithEndpoints(Endpoints{
		Places:  srv.URL + "/v1/",
		Geocode: srv.URL + "/maps/api",
	}))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, errAPIKeyRequired)
}

func TestAutocomplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/places:autocomplete", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, suggestionFields, r.Header.Get("X-Goog-FieldMask"))

		var body AutocompleteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "indiranagar 100 feet", body.Input)
		assert.Equal(t, []string{"IN"}, body.IncludedRegionCodes)

		_, _ = w.Write([]byte(`{"suggestions":[
			{"placePrediction":{"placeId":"place_123","text":{"text":"100 Feet Rd, Indiranagar"}}},
			{"queryPrediction":{"text":{"text":"indiranagar cafes"}}}
		]}`))
	})

	got, err := c.Autocomplete(context.Background(), AutocompleteRequest{
		Input:               " indiranagar 100 feet ",
		IncludedRegionCodes: []string{"IN"},
	})
	require.NoError(t, err)
	assert.Equal(t, []AutocompleteSuggestion{{PlaceID: "place_123", Description: "100 Feet Rd, Indiranagar"}}, got)
}

func TestAutocompleteSurfacesGoogleError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	})

	_, err := c.Autocomplete(context.Background(), AutocompleteRequest{Input: "mg road"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
	assert.Equal(t, "API key not valid", apiErr.Message)
}

func TestGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "MG Road, Bengaluru", q.Get("address"))
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "in", q.Get("region"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"MG Road, Bengaluru, Karnataka 560001, India","place_id":"place_mg","geometry":{"location":{"lat":12.9756,"lng":77.6067}}}]}`))
	})

	got, err := c.Geocode(context.Background(), "  MG Road, Bengaluru ", "IN")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "place_mg", got.PlaceID)
	assert.Equal(t, LatLng{Latitude: 12.9756, Longitude: 77.6067}, got.Location)
}

func TestGeocodeNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})

	got, err := c.Geocode(context.Background(), "nowhere at all", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGeocodeRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	})

	_, err := c.Geocode(context.Background(), "MG Road", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "REQUEST_DENIED", apiErr.Status)

	_, err = c.Geocode(context.Background(), "   ", "")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
