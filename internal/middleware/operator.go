package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireOperator gates trusted-scheduler endpoints such as the reminder
// sweep behind a shared secret. An empty configured token disables the
// endpoint entirely rather than leaving it open.
func RequireOperator(operatorToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if operatorToken == "" {
				http.Error(w, "operator endpoint disabled", http.StatusForbidden)
				return
			}
			provided := r.Header.Get("X-Operator-Token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(operatorToken)) != 1 {
				http.Error(w, "invalid operator token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
