package server

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// corsMiddleware allows the configured origins. Entries may be a full origin
// (https://example.com), a host:port or a bare host name. "*" allows every
// origin and an empty list only allows local development origins.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	config.AllowOriginFunc = originPolicy(allowed)
	return cors.New(config)
}

// originPolicy returns the predicate shared by CORS and the WebSocket
// upgrader.
func originPolicy(allowed []string) func(origin string) bool {
	return func(origin string) bool {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			return false
		}
		if len(allowed) == 0 {
			return isLocalOrigin(origin)
		}
		for _, item := range allowed {
			item = strings.TrimSpace(item)
			if item == "*" {
				return true
			}
			if item != "" && isOriginMatched(origin, item) {
				return true
			}
		}
		return false
	}
}

func isOriginMatched(origin, allowed string) bool {
	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		return false
	}

	originScheme := strings.ToLower(parsedOrigin.Scheme)
	originHost := strings.ToLower(parsedOrigin.Host)
	originHostname := strings.ToLower(parsedOrigin.Hostname())
	if originScheme == "" || originHost == "" || originHostname == "" {
		return false
	}

	allowed = strings.ToLower(strings.TrimRight(allowed, "/"))
	if strings.Contains(allowed, "://") {
		parsedAllowed, err := url.Parse(allowed)
		if err != nil {
			return false
		}
		return originScheme == parsedAllowed.Scheme && originHost == parsedAllowed.Host
	}

	return allowed == originHost || allowed == originHostname
}

func isLocalOrigin(origin string) bool {
	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsedOrigin.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
