package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"ipam/internal/auth"
	"ipam/internal/ipam"
)

var allocator *ipam.Allocator

// UseAllocator wires the allocation engine the route handlers call.
func UseAllocator(a *ipam.Allocator) {
	allocator = a
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the {code, message, details} envelope every failure
// uses on the wire.
func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	if status >= http.StatusInternalServerError {
		log.Error("Server error", "code", code, "message", message)
	} else {
		log.Warn("Client error", "code", code, "message", message)
	}
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"details": details,
	})
}

// writeFailure maps an allocator failure onto the wire envelope.
func writeFailure(w http.ResponseWriter, failure *ipam.Failure) {
	writeError(w, failure.HTTPStatus(), string(failure.Code), failure.Message, failure.Details)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow any origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		// Handle preflight request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass the request to the next handler
		next.ServeHTTP(w, r)
	})
}

// Handler assembles the full middleware and route stack.
func Handler() http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", healthz)
	router.HandleFunc("GET /readyz", readyz)

	router.Handle("POST /allocate", auth.RequireAPIKey(http.HandlerFunc(allocate)))
	router.Handle("GET /calculate", auth.RequireAPIKey(http.HandlerFunc(calculate)))
	router.Handle("GET /allocations", auth.RequireAPIKey(http.HandlerFunc(listAllocations)))
	router.Handle("PUT /allocations/{id}", auth.RequireAPIKey(http.HandlerFunc(reassignAllocation)))
	router.Handle("DELETE /allocations/{id}", auth.RequireAPIKey(http.HandlerFunc(deleteAllocation)))
	router.Handle("POST /vpcs", auth.RequireAPIKey(http.HandlerFunc(createVPC)))
	router.Handle("DELETE /vpcs/{name}", auth.RequireAPIKey(http.HandlerFunc(deleteVPC)))

	return enableCORS(withRequestID(router))
}

func OpenRoutes(port int) error {
	log.Debug("Routes opened")

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(),
	}

	log.Infof("Starting IPAM API on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
