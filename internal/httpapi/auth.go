package httpapi

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"riq/internal/errors"
)

const (
	// AuthHeader is the header name for bearer token authentication
	AuthHeader = "Authorization"

	// AuthScheme is the authentication scheme prefix
	AuthScheme = "Bearer "
)

// withAuth wraps a handler with bearer token authentication. The
// expected credential resolves token file hash first, then the
// TokenEnvVar plaintext. With neither configured, requests pass with a
// one-time warning so a local server stays usable out of the box.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.tokenHash()
		envToken := os.Getenv(TokenEnvVar)
		if hash == "" && envToken == "" {
			s.warnOnce.Do(func() {
				s.logger.Warn("No API token configured, accepting unauthenticated requests", map[string]interface{}{
					"tokenFile": s.cfg.TokenFile,
				})
			})
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(AuthHeader)
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, errors.Unauthorized, "missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, AuthScheme) {
			writeError(w, http.StatusUnauthorized, errors.Unauthorized, "invalid Authorization scheme, expected Bearer")
			return
		}
		provided := strings.TrimPrefix(authHeader, AuthScheme)

		if hash != "" {
			if !VerifyToken(provided, hash) {
				writeError(w, http.StatusUnauthorized, errors.Unauthorized, "invalid token")
				return
			}
		} else if subtle.ConstantTimeCompare([]byte(provided), []byte(envToken)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.Unauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tokenHash reads the configured token file. Read per request so a
// token generated while the server runs takes effect without a restart.
func (s *Server) tokenHash() string {
	if s.cfg.TokenFile == "" {
		return ""
	}
	hash, err := ReadTokenHash(s.cfg.TokenFile)
	if err != nil {
		s.logger.Warn("Failed to read token file", map[string]interface{}{
			"path":  s.cfg.TokenFile,
			"error": err.Error(),
		})
		return ""
	}
	return hash
}
