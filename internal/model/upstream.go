package model

import (
	"io"
	"net/http"
)

// UpstreamResponse is a raw upstream HTTP response whose body ownership has
// been handed to the caller.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
