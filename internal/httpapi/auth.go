package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const callerContextKey = "caller"

// adminRole is the roles claim entry that grants admin access
const adminRole = "ADMIN"

// Caller is the authenticated identity behind a request
type Caller struct {
	ID       string
	Username string
	Roles    []string
}

// AuthConfig holds the bearer token settings of the API
type AuthConfig struct {
	Secret   []byte
	AdminIDs []string // subjects granted admin access without a roles claim
}

var validMethods = []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS512.Alg()}

// Authenticate resolves an optional bearer token into a Caller. Requests
// without an Authorization header pass through anonymously; a header that
// does not carry a valid token is rejected.
func Authenticate(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return next(c)
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return errorJSON(c, http.StatusUnauthorized, "no bearer token")
			}

			caller, err := parseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				return errorJSON(c, http.StatusUnauthorized, "invalid token")
			}
			c.Set(callerContextKey, caller)
			return next(c)
		}
	}
}

// RequireCaller rejects anonymous requests
func RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := CallerFrom(c); !ok {
			return errorJSON(c, http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}

// RequireAdmin rejects callers that are neither listed in adminIDs nor carry
// the ADMIN role. It must run after RequireCaller.
func RequireAdmin(adminIDs []string) echo.MiddlewareFunc {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, _ := CallerFrom(c)
			if !admins[caller.ID] && !caller.HasRole(adminRole) {
				return errorJSON(c, http.StatusForbidden, "admin access required")
			}
			return next(c)
		}
	}
}

// HasRole reports whether the token granted role
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// CallerFrom returns the caller set by Authenticate
func CallerFrom(c echo.Context) (Caller, bool) {
	caller, ok := c.Get(callerContextKey).(Caller)
	return caller, ok && caller.ID != ""
}

func parseToken(secret []byte, tokenStr string) (Caller, error) {
	if len(secret) == 0 {
		return Caller{}, fmt.Errorf("token verification is not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods(validMethods))
	if err != nil || !token.Valid {
		return Caller{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Caller{}, fmt.Errorf("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Caller{}, fmt.Errorf("token has no subject")
	}

	caller := Caller{ID: sub}
	if username, ok := claims["username"].(string); ok {
		caller.Username = username
	}
	caller.Roles = rolesClaim(claims["roles"])
	return caller, nil
}

// rolesClaim accepts roles as a single string or a list of strings
func rolesClaim(raw interface{}) []string {
	switch roles := raw.(type) {
	case string:
		return []string{roles}
	case []interface{}:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
