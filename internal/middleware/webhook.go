package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HeaderWebhookSecret carries the secret shared with the SMS gateway
const HeaderWebhookSecret = "X-Webhook-Secret"

// WebhookSecret admits gateway callbacks carrying the shared secret. An empty
// secret rejects every callback.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(HeaderWebhookSecret)
			if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				log.Warn().Str("path", r.URL.Path).Msg("Rejected webhook with missing or invalid secret")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+HeaderWebhookSecret)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
