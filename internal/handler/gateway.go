package handler

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/afilabs/google-weather-backend/internal/model"
	"github.com/afilabs/google-weather-backend/internal/service"
)

// Fixed client-facing error messages. Upstream failure detail is logged
// server-side only, so neither upstream errors nor the API key can leak.
const (
	msgMissingInput   = "Input query parameter is required"
	msgMissingCoords  = "Latitude and longitude are required"
	msgDaysOutOfRange = "Days parameter must be between 1 and 7"
	msgMissingPlaceID = "placeId query parameter is required"

	msgPlacesFailed         = "Failed to fetch places data"
	msgWeatherFailed        = "Failed to fetch weather data"
	msgForecastFailed       = "Failed to fetch forecast data"
	msgHourlyForecastFailed = "Failed to fetch hourly forecast data"
	msgPlaceDetailsFailed   = "Failed to fetch place details"
)

// apiKeyPattern matches key query parameter values in URLs embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)(key=)[^&\s"]+`)

// GatewayHandler serves the five proxy routes.
type GatewayHandler struct {
	service *service.GatewayService
	logger  *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(svc *service.GatewayService, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		service: svc,
		logger:  logger.With("component", "gateway_handler"),
	}
}

// Places handles GET /api/places: autocomplete with the response flattened to
// the legacy predictions shape.
func (h *GatewayHandler) Places(c echo.Context) error {
	input := c.QueryParam("input")
	if input == "" {
		return badRequest(c, msgMissingInput)
	}

	envelope, err := h.service.Autocomplete(c.Request().Context(), input, c.QueryParam("types"))
	if err != nil {
		return h.upstreamError(c, err, msgPlacesFailed)
	}

	return c.JSON(http.StatusOK, envelope)
}

// CurrentConditions handles GET /api/current-conditions.
func (h *GatewayHandler) CurrentConditions(c echo.Context) error {
	latitude, longitude := c.QueryParam("latitude"), c.QueryParam("longitude")
	if latitude == "" || longitude == "" {
		return badRequest(c, msgMissingCoords)
	}

	resp, err := h.service.CurrentConditions(c.Request().Context(), latitude, longitude)
	if err != nil {
		return h.upstreamError(c, err, msgWeatherFailed)
	}

	return h.relay(c, resp)
}

// Forecast handles GET /api/forecast. days defaults to 1, tolerates unparsable
// input, and must land in [1, 7].
func (h *GatewayHandler) Forecast(c echo.Context) error {
	latitude, longitude := c.QueryParam("latitude"), c.QueryParam("longitude")
	if latitude == "" || longitude == "" {
		return badRequest(c, msgMissingCoords)
	}

	days := 1
	if raw := c.QueryParam("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			days = parsed
		}
	}
	if days < 1 || days > 7 {
		return badRequest(c, msgDaysOutOfRange)
	}

	resp, err := h.service.Forecast(c.Request().Context(), latitude, longitude, days)
	if err != nil {
		return h.upstreamError(c, err, msgForecastFailed)
	}

	return h.relay(c, resp)
}

// HourlyForecast handles GET /api/hourly-forecast. hours is forwarded raw,
// defaulting to "24"; the upstream enforces any bounds.
func (h *GatewayHandler) HourlyForecast(c echo.Context) error {
	latitude, longitude := c.QueryParam("latitude"), c.QueryParam("longitude")
	if latitude == "" || longitude == "" {
		return badRequest(c, msgMissingCoords)
	}

	hours := c.QueryParam("hours")
	if hours == "" {
		hours = "24"
	}

	resp, err := h.service.HourlyForecast(c.Request().Context(), latitude, longitude, hours)
	if err != nil {
		return h.upstreamError(c, err, msgHourlyForecastFailed)
	}

	return h.relay(c, resp)
}

// PlaceDetails handles GET /api/place-details.
func (h *GatewayHandler) PlaceDetails(c echo.Context) error {
	placeID := c.QueryParam("placeId")
	if placeID == "" {
		return badRequest(c, msgMissingPlaceID)
	}

	resp, err := h.service.PlaceDetails(c.Request().Context(), placeID)
	if err != nil {
		return h.upstreamError(c, err, msgPlaceDetailsFailed)
	}

	return h.relay(c, resp)
}

// relay streams an upstream body back to the client verbatim.
func (h *GatewayHandler) relay(c echo.Context, resp *model.UpstreamResponse) error {
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// If io.Copy fails mid-stream (client disconnect, network error), the
	// status has already been sent, so the client sees a truncated body.
	// That is an inherent trade-off of streaming; log it for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
	}

	return nil
}

// upstreamError logs the real cause (with the API key redacted) and answers
// with the route's fixed generic message.
func (h *GatewayHandler) upstreamError(c echo.Context, err error, message string) error {
	h.logger.Error("upstream error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

// sanitizeError redacts API keys from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return apiKeyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
