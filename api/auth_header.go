package api

import (
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// bearerTokenFromHeader extracts the raw JWT from an Authorization header
// value. It insists on the Bearer scheme and the three-segment JWT shape so
// obviously broken headers are rejected before any parsing work.
func bearerTokenFromHeader(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.EqualFold(trimmed[:len(bearerPrefix)], bearerPrefix) {
		return "", errBadAuthorization
	}
	token := trimmed[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
