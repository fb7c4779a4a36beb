package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"ipam/internal/api/dto"
	"ipam/internal/database"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

func listAllocations(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPageLimit {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST",
				fmt.Sprintf("limit must be between 1 and %d", maxPageLimit), nil)
			return
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "offset must be non-negative", nil)
			return
		}
		offset = parsed
	}

	page, err := database.ListAllocations(allocator.Policy(), limit, offset, r.URL.Query().Get("vpc"))
	if err != nil {
		log.Error("Could not list allocations", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func createVPC(w http.ResponseWriter, r *http.Request) {
	var payload dto.VPCRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body", nil)
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required", nil)
		return
	}

	if err := database.CreateVPC(payload.Name); err != nil {
		log.Error("Could not create VPC", "name", payload.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func deleteVPC(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	deleted, err := database.DeleteVPC(name)
	if err != nil {
		log.Error("Could not delete VPC", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "deleted": deleted})
}

func reassignAllocation(w http.ResponseWriter, r *http.Request) {
	allocationID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid allocation id", nil)
		return
	}

	var payload dto.ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body", nil)
		return
	}

	newVPCName := strings.TrimSpace(payload.NewVPCName)
	if newVPCName == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "new_vpc_name is required", nil)
		return
	}

	if err := database.ReassignAllocation(allocationID, newVPCName); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("Allocation %d not found", allocationID), nil)
			return
		}
		log.Error("Could not reassign allocation", "allocation_id", allocationID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"allocation_id": allocationID,
		"new_vpc_name":  newVPCName,
	})
}

func deleteAllocation(w http.ResponseWriter, r *http.Request) {
	allocationID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid allocation id", nil)
		return
	}

	deleted, err := database.DeleteAllocation(allocationID)
	if err != nil {
		log.Error("Could not delete allocation", "allocation_id", allocationID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("Allocation %d not found", allocationID), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "deleted": true})
}
