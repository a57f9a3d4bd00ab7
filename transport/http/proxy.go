package http

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
)

// NewBackendProxy forwards requests to whichever backend is selected at the
// time of the request, carrying the session's bearer token
func NewBackendProxy(endpoint *backend.Endpoint, tokens ports.TokenSource, logger zerolog.Logger) gin.HandlerFunc {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target, err := url.Parse(endpoint.BaseURL())
			if err != nil {
				return
			}
			pr.SetURL(target)
			// The caller's credentials are never forwarded
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport: &backend.BearerTransport{Tokens: tokens},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("backend proxy failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"Backend unavailable"}`))
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}
