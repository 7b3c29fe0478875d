package apikey

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/webharvest/webharvest/internal/jobstore"
)

type contextKey string

const contextKeyAPIKey contextKey = "apikey"

// Middleware rejects requests lacking a valid Bearer credential with
// HTTP 401 (§7), and injects the authenticated jobstore.APIKey into
// the request context otherwise.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the authenticated key stored by Middleware, if any.
func FromContext(ctx context.Context) (jobstore.APIKey, bool) {
	key, ok := ctx.Value(contextKeyAPIKey).(jobstore.APIKey)
	return key, ok
}
