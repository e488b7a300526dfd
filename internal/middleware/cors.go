package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/afilabs/google-weather-backend/internal/policy"
)

// CORS returns an Echo middleware applying the origin policy. Allowed origins
// are echoed back with credentials enabled; denied origins get no CORS
// headers, so the browser rejects the response.
func CORS(pol *policy.OriginPolicy) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return pol.Allow(origin), nil
		},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
	})
}
