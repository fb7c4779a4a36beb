package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"ipam/internal/database"
)

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func readyz(w http.ResponseWriter, _ *http.Request) {
	if err := database.Ping(); err != nil {
		log.Error("Readiness check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVICE_UNAVAILABLE", "Database not ready", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}
