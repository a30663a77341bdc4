package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/maps"
	"github.com/redis/go-redis/v9"
)

const missMarker = "null"

// Point is a resolved latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SuggestRequest carries the partial address typed by the user.
type SuggestRequest struct {
	Query    string `json:"query"`
	Country  string `json:"country,omitempty"`
	Language string `json:"language,omitempty"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// Service resolves mission addresses to coordinates.
type Service interface {
	Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error)
	// Geocode returns nil when the address cannot be resolved. Provider and
	// cache failures are logged and also degrade to nil.
	Geocode(ctx context.Context, address string) (*Point, error)
}

type mapsClient interface {
	Autocomplete(ctx context.Context, req maps.AutocompleteRequest) ([]maps.AutocompleteSuggestion, error)
	Geocode(ctx context.Context, address, region string) (*maps.GeocodeResult, error)
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GeocodeKey(address string) string
}

type service struct {
	maps    mapsClient
	cache   cache
	logg    *logger.Logger
	region  string
	hitTTL  time.Duration
	missTTL time.Duration
}

// NewService builds the geocoder. A nil cache disables caching; a nil maps
// client makes every lookup resolve to nil.
func NewService(client mapsClient, c cache, cfg config.GoogleMapsConfig, logg *logger.Logger) Service {
	return &service{
		maps:    client,
		cache:   c,
		logg:    logg,
		region:  cfg.Region,
		hitTTL:  cfg.GeocodeTTL,
		missTTL: cfg.GeocodeMissTTL,
	}
}

func (s *service) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	if s.maps == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "maps client unavailable")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query is required")
	}

	payload := maps.AutocompleteRequest{Input: strings.TrimSpace(req.Query)}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = s.region
	}
	if country != "" {
		payload.IncludedRegionCodes = []string{strings.ToUpper(country)}
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		payload.LanguageCode = lang
	}

	resp, err := s.maps.Autocomplete(ctx, payload)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(resp))
	for _, item := range resp {
		suggestions = append(suggestions, Suggestion{
			PlaceID:     item.PlaceID,
			Description: item.Description,
		})
	}
	return suggestions, nil
}

func (s *service) Geocode(ctx context.Context, address string) (*Point, error) {
	normalized := normalizeAddress(address)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	key := ""
	if s.cache != nil {
		key = s.cache.GeocodeKey(cacheDigest(normalized))
		if point, hit := s.lookup(ctx, key); hit {
			return point, nil
		}
	}

	if s.maps == nil {
		return nil, nil
	}

	result, err := s.maps.Geocode(ctx, normalized, s.region)
	if err != nil {
		s.warn(ctx, "geocode lookup failed", err)
		return nil, nil
	}

	var point *Point
	if result != nil {
		point = &Point{Lat: result.Location.Latitude, Lng: result.Location.Longitude}
	}
	if key != "" {
		s.store(ctx, key, point)
	}
	return point, nil
}

func (s *service) lookup(ctx context.Context, key string) (*Point, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn(ctx, "geocode cache read failed", err)
		}
		return nil, false
	}
	if raw == missMarker {
		return nil, true
	}
	var point Point
	if err := json.Unmarshal([]byte(raw), &point); err != nil {
		s.warn(ctx, "geocode cache entry corrupt", err)
		return nil, false
	}
	return &point, true
}

func (s *service) store(ctx context.Context, key string, point *Point) {
	value := missMarker
	ttl := s.missTTL
	if point != nil {
		encoded, err := json.Marshal(point)
		if err != nil {
			return
		}
		value = string(encoded)
		ttl = s.hitTTL
	}
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.warn(ctx, "geocode cache write failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func normalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

func cacheDigest(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
