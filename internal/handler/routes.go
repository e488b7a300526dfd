package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, gateway *GatewayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	e.GET("/api/places", gateway.Places)
	e.GET("/api/current-conditions", gateway.CurrentConditions)
	e.GET("/api/forecast", gateway.Forecast)
	e.GET("/api/hourly-forecast", gateway.HourlyForecast)
	e.GET("/api/place-details", gateway.PlaceDetails)
}
