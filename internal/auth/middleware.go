package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
)

const apiKeyHeader = "X-API-Key"

// RequireAPIKey guards a route with the static API key from the
// environment. The comparison is constant time so the key cannot be
// probed byte by byte.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		configured := os.Getenv("API_KEY")
		if configured == "" {
			log.Error("API key not configured on server")
			writeEnvelope(w, http.StatusInternalServerError, "SERVER_ERROR", "API key not configured")
			return
		}

		presented := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
			log.Warn("Invalid API key attempt")
			writeEnvelope(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API Key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"details": nil,
	})
}
