package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/afilabs/google-weather-backend/internal/client"
	"github.com/afilabs/google-weather-backend/internal/config"
	"github.com/afilabs/google-weather-backend/internal/service"
)

// newTestGateway builds a GatewayHandler whose upstreams all point at the
// given base URL (typically an httptest server).
func newTestGateway(t *testing.T, upstreamURL string) *GatewayHandler {
	t.Helper()

	cfg := &config.Config{
		Google: config.GoogleConfig{APIKey: "test-key"},
		Upstream: config.UpstreamConfig{
			PlacesBaseURL:   upstreamURL,
			WeatherBaseURL:  upstreamURL,
			MapsBaseURL:     upstreamURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gc := client.NewGoogleClient(cfg, logger, nil)
	svc, err := service.NewGatewayServiceForTest(gc, cfg, logger)
	if err != nil {
		t.Fatalf("NewGatewayServiceForTest: %v", err)
	}
	return NewGatewayHandler(svc, logger)
}

func doRequest(t *testing.T, h echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	return body["error"]
}

func TestPlaces_MissingInput(t *testing.T) {
	h := newTestGateway(t, "http://127.0.0.1:0")

	rec := doRequest(t, h.Places, "/api/places")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := errorMessage(t, rec); got != "Input query parameter is required" {
		t.Errorf("error = %q, want %q", got, "Input query parameter is required")
	}
}

func TestPlaces_FlattensSuggestions(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if got := r.Header.Get("X-Goog-Api-Key"); got != "test-key" {
			t.Errorf("X-Goog-Api-Key = %q, want %q", got, "test-key")
		}
		if got := r.Header.Get("X-Goog-FieldMask"); got == "" {
			t.Error("expected X-Goog-FieldMask header")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body["input"] != "Par" {
			t.Errorf("input = %v, want %q", body["input"], "Par")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"suggestions":[{"placePrediction":{"text":{"text":"Paris"},"placeId":"p1","types":["locality"]}}]}`))
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.Places, "/api/places?input=Par")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got struct {
		Predictions []struct {
			Description string   `json:"description"`
			PlaceID     string   `json:"place_id"`
			Types       []string `json:"types"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Predictions) != 1 {
		t.Fatalf("predictions = %d, want 1", len(got.Predictions))
	}
	p := got.Predictions[0]
	if p.Description != "Paris" || p.PlaceID != "p1" || len(p.Types) != 1 || p.Types[0] != "locality" {
		t.Errorf("prediction = %+v, want {Paris p1 [locality]}", p)
	}
}

func TestPlaces_TypesForwardedAsPrimaryTypes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input                string   `json:"input"`
			IncludedPrimaryTypes []string `json:"includedPrimaryTypes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if len(body.IncludedPrimaryTypes) != 1 || body.IncludedPrimaryTypes[0] != "locality" {
			t.Errorf("includedPrimaryTypes = %v, want [locality]", body.IncludedPrimaryTypes)
		}
		_, _ = w.Write([]byte(`{"suggestions":[]}`))
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.Places, "/api/places?input=Par&types=locality")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	// An empty suggestion list flattens to an empty (not null) predictions array.
	var got map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(got["predictions"]) != "[]" {
		t.Errorf("predictions = %s, want []", got["predictions"])
	}
}

func TestPlaces_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx upstream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota exceeded", http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(tt.handler)
			defer upstream.Close()

			h := newTestGateway(t, upstream.URL)
			rec := doRequest(t, h.Places, "/api/places?input=Par")

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
			}
			if got := errorMessage(t, rec); got != "Failed to fetch places data" {
				t.Errorf("error = %q, want %q", got, "Failed to fetch places data")
			}
		})
	}
}

func TestCoordinateRoutes_MissingCoords(t *testing.T) {
	h := newTestGateway(t, "http://127.0.0.1:0")

	routes := map[string]echo.HandlerFunc{
		"/api/current-conditions": h.CurrentConditions,
		"/api/forecast":           h.Forecast,
		"/api/hourly-forecast":    h.HourlyForecast,
	}
	queries := []string{"", "?latitude=45.5", "?longitude=-73.5"}

	for path, fn := range routes {
		for _, q := range queries {
			t.Run(path+q, func(t *testing.T) {
				rec := doRequest(t, fn, path+q)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
				}
				if got := errorMessage(t, rec); got != "Latitude and longitude are required" {
					t.Errorf("error = %q, want %q", got, "Latitude and longitude are required")
				}
			})
		}
	}
}

func TestCurrentConditions_RelaysVerbatim(t *testing.T) {
	const upstreamBody = `{"temperature":{"degrees":21.5},"isDaytime":true}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "test-key" {
			t.Errorf("key = %q, want %q", q.Get("key"), "test-key")
		}
		if q.Get("location.latitude") != "45.5" || q.Get("location.longitude") != "-73.5" {
			t.Errorf("location = %q,%q, want 45.5,-73.5", q.Get("location.latitude"), q.Get("location.longitude"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamBody))
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.CurrentConditions, "/api/current-conditions?latitude=45.5&longitude=-73.5")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != upstreamBody {
		t.Errorf("body = %q, want it relayed verbatim", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestCurrentConditions_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.CurrentConditions, "/api/current-conditions?latitude=45.5&longitude=-73.5")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := errorMessage(t, rec); got != "Failed to fetch weather data" {
		t.Errorf("error = %q, want %q", got, "Failed to fetch weather data")
	}
}

func TestForecast_DaysValidation(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantStatus   int
		wantUpstream string // expected days param seen upstream, "" if no call expected
	}{
		{"omitted defaults to 1", "", http.StatusOK, "1"},
		{"valid mid-range", "&days=3", http.StatusOK, "3"},
		{"lower bound", "&days=1", http.StatusOK, "1"},
		{"upper bound", "&days=7", http.StatusOK, "7"},
		{"unparsable defaults to 1", "&days=abc", http.StatusOK, "1"},
		{"zero rejected", "&days=0", http.StatusBadRequest, ""},
		{"eight rejected", "&days=8", http.StatusBadRequest, ""},
		{"negative rejected", "&days=-2", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDays string
			called := false
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotDays = r.URL.Query().Get("days")
				_, _ = w.Write([]byte(`{}`))
			}))
			defer upstream.Close()

			h := newTestGateway(t, upstream.URL)
			rec := doRequest(t, h.Forecast, "/api/forecast?latitude=45.5&longitude=-73.5"+tt.query)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantUpstream == "" {
				if called {
					t.Error("upstream called despite rejected days value")
				}
				if got := errorMessage(t, rec); got != "Days parameter must be between 1 and 7" {
					t.Errorf("error = %q, want %q", got, "Days parameter must be between 1 and 7")
				}
				return
			}
			if gotDays != tt.wantUpstream {
				t.Errorf("upstream days = %q, want %q", gotDays, tt.wantUpstream)
			}
		})
	}
}

func TestForecast_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.Forecast, "/api/forecast?latitude=45.5&longitude=-73.5")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := errorMessage(t, rec); got != "Failed to fetch forecast data" {
		t.Errorf("error = %q, want %q", got, "Failed to fetch forecast data")
	}
}

func TestHourlyForecast_HoursForwardedRaw(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantHours string
	}{
		{"omitted defaults to 24", "", "24"},
		{"numeric forwarded", "&hours=12", "12"},
		{"out-of-range forwarded unvalidated", "&hours=999", "999"},
		{"non-numeric forwarded raw", "&hours=abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotHours string
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotHours = r.URL.Query().Get("hours")
				_, _ = w.Write([]byte(`{}`))
			}))
			defer upstream.Close()

			h := newTestGateway(t, upstream.URL)
			rec := doRequest(t, h.HourlyForecast, "/api/hourly-forecast?latitude=45.5&longitude=-73.5"+tt.query)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if gotHours != tt.wantHours {
				t.Errorf("upstream hours = %q, want %q", gotHours, tt.wantHours)
			}
		})
	}
}

func TestHourlyForecast_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.HourlyForecast, "/api/hourly-forecast?latitude=45.5&longitude=-73.5")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := errorMessage(t, rec); got != "Failed to fetch hourly forecast data" {
		t.Errorf("error = %q, want %q", got, "Failed to fetch hourly forecast data")
	}
}

func TestPlaceDetails_MissingPlaceID(t *testing.T) {
	h := newTestGateway(t, "http://127.0.0.1:0")

	rec := doRequest(t, h.PlaceDetails, "/api/place-details")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := errorMessage(t, rec); got != "placeId query parameter is required" {
		t.Errorf("error = %q, want %q", got, "placeId query parameter is required")
	}
}

func TestPlaceDetails_ForwardsFixedFields(t *testing.T) {
	const upstreamBody = `{"result":{"name":"Mount Royal"},"status":"OK"}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("place_id") != "p1" {
			t.Errorf("place_id = %q, want %q", q.Get("place_id"), "p1")
		}
		if q.Get("fields") != "geometry,name,formatted_address" {
			t.Errorf("fields = %q, want %q", q.Get("fields"), "geometry,name,formatted_address")
		}
		if q.Get("key") != "test-key" {
			t.Errorf("key = %q, want %q", q.Get("key"), "test-key")
		}
		_, _ = w.Write([]byte(upstreamBody))
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)
	rec := doRequest(t, h.PlaceDetails, "/api/place-details?placeId=p1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != upstreamBody {
		t.Errorf("body = %q, want it relayed verbatim", rec.Body.String())
	}
}

func TestPlaceDetails_UpstreamFailure(t *testing.T) {
	h := newTestGateway(t, "http://127.0.0.1:0") // nothing listening: network error

	rec := doRequest(t, h.PlaceDetails, "/api/place-details?placeId=p1")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := errorMessage(t, rec); got != "Failed to fetch place details" {
		t.Errorf("error = %q, want %q", got, "Failed to fetch place details")
	}
}

func TestRepeatedRequestsAreIdentical(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature":{"degrees":21.5}}`))
	}))
	defer upstream.Close()

	h := newTestGateway(t, upstream.URL)

	first := doRequest(t, h.CurrentConditions, "/api/current-conditions?latitude=45.5&longitude=-73.5")
	second := doRequest(t, h.CurrentConditions, "/api/current-conditions?latitude=45.5&longitude=-73.5")

	if first.Code != second.Code {
		t.Errorf("status differs between identical requests: %d vs %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("body differs between identical requests: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name string
		err  string
		want string
	}{
		{
			name: "redacts key in URL",
			err:  `Get "https://weather.googleapis.com/v1/currentConditions:lookup?key=secret123&days=1": connection refused`,
			want: `Get "https://weather.googleapis.com/v1/currentConditions:lookup?key=[REDACTED]&days=1": connection refused`,
		},
		{
			name: "redacts key at end of URL",
			err:  `Get "https://maps.googleapis.com/maps/api/place/details/json?key=secret123": EOF`,
			want: `Get "https://maps.googleapis.com/maps/api/place/details/json?key=[REDACTED]": EOF`,
		},
		{
			name: "no key unchanged",
			err:  "connection refused",
			want: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeError(fmt.Errorf("%s", tt.err))
			if got != tt.want {
				t.Errorf("sanitizeError() = %q, want %q", got, tt.want)
			}
		})
	}
}
