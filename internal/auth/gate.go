package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/choir/config"
)

const (
	bearerPrefix        = "Bearer "
	encodedBearerPrefix = "Bearer%20"

	// ContextKey is where Require stores the resolved Ring on the echo context.
	ContextKey = "ring"
)

// Gate decides admission from a bearer credential. It is read-only after construction.
type Gate struct {
	secrets [3]string // indexed by Ring0..Ring2
}

// NewGate builds a gate from the configured ring secrets.
func NewGate(cfg config.AuthConfig) *Gate {
	return &Gate{secrets: [3]string{cfg.Ring0, cfg.Ring1, cfg.Ring2}}
}

// ExtractBearer strips "Bearer " or the URL-encoded "Bearer%20" prefix.
func ExtractBearer(header string) (string, bool) {
	var token string
	switch {
	case strings.HasPrefix(header, bearerPrefix):
		token = header[len(bearerPrefix):]
	case strings.HasPrefix(header, encodedBearerPrefix):
		token = header[len(encodedBearerPrefix):]
	default:
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, true
}

// Resolve maps an Authorization header value to the ring whose secret it carries.
func (g *Gate) Resolve(header string) (Ring, bool) {
	token, ok := ExtractBearer(header)
	if !ok {
		return Public, false
	}
	for i, secret := range g.secrets {
		if secret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
			return Ring(i), true
		}
	}
	return Public, false
}

// Admit reports whether the header grants at least the required ring.
// An empty header means no credential was presented.
func (g *Gate) Admit(header string, required Ring) bool {
	if required >= Public {
		return true
	}
	ring, ok := g.Resolve(header)
	if !ok {
		return false
	}
	return ring.Covers(required)
}

// Require guards a route with the given ring. Rejections surface as 401 and are
// rendered by the server's error handler.
func (g *Gate) Require(required Ring) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !g.Admit(header, required) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			ring, ok := g.Resolve(header)
			if !ok {
				ring = Public
			}
			c.Set(ContextKey, ring)
			return next(c)
		}
	}
}
