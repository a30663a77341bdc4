// Package maps talks to Google Places autocomplete and the Geocoding API.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
)

const (
	placesEndpoint  = "https://places.googleapis.com/v1"
	geocodeEndpoint = "https://maps.googleapis.com/maps/api"

	suggestionFields = "suggestions.placePrediction.placeId,suggestions.placePrediction.text"
	errorBodyLimit   = 1 << 10
)

var errAPIKeyRequired = errors.New("google maps api key is required")

// Endpoints overrides the Google base URLs, mostly for tests.
type Endpoints struct {
	Places  string
	Geocode string
}

type Client struct {
	http      *http.Client
	key       string
	endpoints Endpoints
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithEndpoints replaces whichever base URLs are non-blank.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(e.Places); v != "" {
			c.endpoints.Places = strings.TrimRight(v, "/")
		}
		if v := strings.TrimSpace(e.Geocode); v != "" {
			c.endpoints.Geocode = strings.TrimRight(v, "/")
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		key:       key,
		endpoints: Endpoints{Places: placesEndpoint, Geocode: geocodeEndpoint},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// APIError is a non-200 answer or a rejected geocode status.
type APIError struct {
	Op         string
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.HTTPStatus, e.Message)
}

type AutocompleteRequest struct {
	Input               string   `json:"input"`
	IncludedRegionCodes []string `json:"includedRegionCodes,omitempty"`
	LanguageCode        string   `json:"languageCode,omitempty"`
	// SessionToken groups keystrokes of one lookup for billing.
	SessionToken string `json:"sessionToken,omitempty"`
}

type AutocompleteSuggestion struct {
	PlaceID     string
	Description string
}

type LatLng struct {
	Latitude  float64
	Longitude float64
}

type GeocodeResult struct {
	FormattedAddress string
	PlaceID          string
	Location         LatLng
}

type autocompleteResponse struct {
	Suggestions []struct {
		PlacePrediction *struct {
			PlaceID string `json:"placeId"`
			Text    struct {
				Text string `json:"text"`
			} `json:"text"`
		} `json:"placePrediction"`
	} `json:"suggestions"`
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Autocomplete returns place predictions for partial input. Query
// predictions without a place are skipped.
func (c *Client) Autocomplete(ctx context.Context, in AutocompleteRequest) ([]AutocompleteSuggestion, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	in.Input = strings.TrimSpace(in.Input)
	if in.Input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "autocomplete input is required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode autocomplete request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Places+"/places:autocomplete", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build autocomplete request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.key)
	req.Header.Set("X-Goog-FieldMask", suggestionFields)

	var out autocompleteResponse
	if err := c.do(req, "autocomplete", &out); err != nil {
		return nil, err
	}

	suggestions := make([]AutocompleteSuggestion, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		if s.PlacePrediction == nil || s.PlacePrediction.PlaceID == "" {
			continue
		}
		suggestions = append(suggestions, AutocompleteSuggestion{
			PlaceID:     s.PlacePrediction.PlaceID,
			Description: s.PlacePrediction.Text.Text,
		})
	}
	return suggestions, nil
}

// Geocode resolves a free-form address to its first match. A nil result
// with a nil error means there was no match.
func (c *Client) Geocode(ctx context.Context, address, region string) (*GeocodeResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	q := url.Values{"address": {address}, "key": {c.key}}
	if region = strings.TrimSpace(region); region != "" {
		q.Set("region", strings.ToLower(region))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Geocode+"/geocode/json?"+q.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build geocode request")
	}

	var out geocodeResponse
	if err := c.do(req, "geocode", &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		apiErr := &APIError{Op: "geocode", HTTPStatus: http.StatusOK, Status: out.Status, Message: out.ErrorMessage}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, apiErr, "geocode request rejected")
	}
	if len(out.Results) == 0 {
		return nil, nil
	}

	top := out.Results[0]
	return &GeocodeResult{
		FormattedAddress: top.FormattedAddress,
		PlaceID:          top.PlaceID,
		Location:         LatLng{Latitude: top.Geometry.Location.Lat, Longitude: top.Geometry.Location.Lng},
	}, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiErrorFrom(op, resp.StatusCode, raw), op+" request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+op+" response")
	}
	return nil
}

// apiErrorFrom prefers the message from Google's error envelope and falls
// back to the raw body.
func apiErrorFrom(op string, code int, raw []byte) *APIError {
	apiErr := &APIError{Op: op, HTTPStatus: code, Message: strings.TrimSpace(string(raw))}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	}
	return apiErr
}
