// Package service implements the per-route upstream translation rules.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/afilabs/google-weather-backend/internal/client"
	"github.com/afilabs/google-weather-backend/internal/config"
	"github.com/afilabs/google-weather-backend/internal/model"
)

// autocompleteFieldMask restricts the Places response to the fields the
// flattened prediction shape needs, bounding payload size and billing.
const autocompleteFieldMask = "suggestions.placePrediction.text.text," +
	"suggestions.placePrediction.placeId," +
	"suggestions.placePrediction.types"

// placeDetailsFields is the fixed requested-fields list for place details.
const placeDetailsFields = "geometry,name,formatted_address"

// allowedUpstreamHosts restricts which hosts the gateway will forward to.
var allowedUpstreamHosts = map[string]bool{
	"places.googleapis.com":  true,
	"weather.googleapis.com": true,
	"maps.googleapis.com":    true,
}

// forwardableResponseHeaders are the only relayed upstream response headers.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":     true,
	"Content-Length":   true,
	"Content-Encoding": true,
	"Cache-Control":    true,
	"Date":             true,
}

// GatewayService issues one upstream call per route and shapes the result.
type GatewayService struct {
	client  *client.GoogleClient
	cfg     *config.Config
	logger  *slog.Logger
	places  *url.URL
	weather *url.URL
	maps    *url.URL
}

// NewGatewayService creates a GatewayService and validates that all configured
// upstream hosts are in the allowlist.
func NewGatewayService(c *client.GoogleClient, cfg *config.Config, logger *slog.Logger) (*GatewayService, error) {
	s, err := newGatewayService(c, cfg, logger)
	if err != nil {
		return nil, err
	}

	for _, u := range []*url.URL{s.places, s.weather, s.maps} {
		if !allowedUpstreamHosts[u.Hostname()] {
			return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
		}
	}
	return s, nil
}

// NewGatewayServiceForTest creates a GatewayService without host allowlist
// validation. This is intended only for tests that use httptest servers on
// localhost.
func NewGatewayServiceForTest(c *client.GoogleClient, cfg *config.Config, logger *slog.Logger) (*GatewayService, error) {
	return newGatewayService(c, cfg, logger)
}

func newGatewayService(c *client.GoogleClient, cfg *config.Config, logger *slog.Logger) (*GatewayService, error) {
	places, err := url.Parse(cfg.Upstream.PlacesBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream places_base_url: %w", err)
	}
	weather, err := url.Parse(cfg.Upstream.WeatherBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream weather_base_url: %w", err)
	}
	maps, err := url.Parse(cfg.Upstream.MapsBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream maps_base_url: %w", err)
	}

	return &GatewayService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "gateway_service"),
		places:  places,
		weather: weather,
		maps:    maps,
	}, nil
}

// Autocomplete calls the Places autocomplete endpoint and flattens the nested
// suggestions into the legacy predictions shape.
func (s *GatewayService) Autocomplete(ctx context.Context, input, typesFilter string) (*model.PredictionsEnvelope, error) {
	reqBody := model.AutocompleteRequest{Input: input}
	if typesFilter != "" {
		reqBody.IncludedPrimaryTypes = []string{typesFilter}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode autocomplete request: %w", err)
	}

	header := http.Header{}
	header.Set("X-Goog-Api-Key", s.cfg.Google.APIKey)
	header.Set("X-Goog-FieldMask", autocompleteFieldMask)

	u := *s.places
	u.Path = "/v1/places:autocomplete"

	resp, err := s.client.PostJSON(ctx, u.String(), header, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("places autocomplete: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("places autocomplete: %w", err)
	}

	var upstream model.AutocompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("decode autocomplete response: %w", err)
	}

	predictions := make([]model.Prediction, 0, len(upstream.Suggestions))
	for _, sg := range upstream.Suggestions {
		predictions = append(predictions, model.Prediction{
			Description: sg.PlacePrediction.Text.Text,
			PlaceID:     sg.PlacePrediction.PlaceID,
			Types:       sg.PlacePrediction.Types,
		})
	}

	return &model.PredictionsEnvelope{Predictions: predictions}, nil
}

// CurrentConditions fetches current weather for the given coordinates.
// The upstream body is relayed verbatim; the caller closes it.
func (s *GatewayService) CurrentConditions(ctx context.Context, latitude, longitude string) (*model.UpstreamResponse, error) {
	q := url.Values{}
	q.Set("key", s.cfg.Google.APIKey)
	q.Set("location.latitude", latitude)
	q.Set("location.longitude", longitude)

	resp, err := s.relayGet(ctx, s.weather, "/v1/currentConditions:lookup", q)
	if err != nil {
		return nil, fmt.Errorf("current conditions: %w", err)
	}
	return resp, nil
}

// Forecast fetches a daily forecast. days has already been validated by the
// caller to be within [1, 7].
func (s *GatewayService) Forecast(ctx context.Context, latitude, longitude string, days int) (*model.UpstreamResponse, error) {
	q := url.Values{}
	q.Set("key", s.cfg.Google.APIKey)
	q.Set("location.latitude", latitude)
	q.Set("location.longitude", longitude)
	q.Set("days", strconv.Itoa(days))

	resp, err := s.relayGet(ctx, s.weather, "/v1/forecast/days:lookup", q)
	if err != nil {
		return nil, fmt.Errorf("daily forecast: %w", err)
	}
	return resp, nil
}

// HourlyForecast fetches an hourly forecast. hours is forwarded as-is; the
// upstream performs any validation of the value.
func (s *GatewayService) HourlyForecast(ctx context.Context, latitude, longitude, hours string) (*model.UpstreamResponse, error) {
	q := url.Values{}
	q.Set("key", s.cfg.Google.APIKey)
	q.Set("location.latitude", latitude)
	q.Set("location.longitude", longitude)
	q.Set("hours", hours)

	resp, err := s.relayGet(ctx, s.weather, "/v1/forecast/hours:lookup", q)
	if err != nil {
		return nil, fmt.Errorf("hourly forecast: %w", err)
	}
	return resp, nil
}

// PlaceDetails fetches details for a place, restricted to a fixed field list.
func (s *GatewayService) PlaceDetails(ctx context.Context, placeID string) (*model.UpstreamResponse, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", placeDetailsFields)
	q.Set("key", s.cfg.Google.APIKey)

	resp, err := s.relayGet(ctx, s.maps, "/maps/api/place/details/json", q)
	if err != nil {
		return nil, fmt.Errorf("place details: %w", err)
	}
	return resp, nil
}

// relayGet issues a GET against base+path with the given query, fails on
// non-2xx, and returns the response with filtered headers for verbatim relay.
func (s *GatewayService) relayGet(ctx context.Context, base *url.URL, path string, q url.Values) (*model.UpstreamResponse, error) {
	u := *base
	u.Path = path
	u.RawQuery = q.Encode()

	s.logger.Debug("forwarding request", "host", u.Host, "path", path)

	resp, err := s.client.Get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// checkStatus treats any non-2xx upstream status as a failure. On failure the
// body is drained and closed; a bounded slice of it is kept for logging.
func checkStatus(resp *model.UpstreamResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	return fmt.Errorf("upstream status %d: %s", resp.StatusCode, snippet)
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
