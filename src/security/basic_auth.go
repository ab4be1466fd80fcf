package security

import (
	"crypto/subtle"
	"net/http"

	"positionledger/src/auth"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth admits requests carrying the configured operator's credentials and puts the
// operator in the request context.
func BasicAuth(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok || !cfg.check(user, password) {
				logger.WithFields(map[string]interface{}{
					"component": "BasicAuth",
					"path":      r.URL.Path,
					"remote":    r.RemoteAddr,
				}).Warn("rejected admin request")
				w.Header().Set("WWW-Authenticate", `Basic realm="position-ledger"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithOperator(r.Context(), &auth.Operator{Name: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c Config) check(user, password string) bool {
	if c.AdminPasswordHash == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(c.AdminUser)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.AdminPasswordHash), []byte(password)) == nil
}
