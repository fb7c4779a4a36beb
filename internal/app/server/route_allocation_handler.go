package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"ipam/internal/api/dto"
	"ipam/internal/ipam"
)

func allocate(w http.ResponseWriter, r *http.Request) {
	var payload dto.AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body", nil)
		return
	}

	if strings.TrimSpace(payload.VPC) == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "vpc is required", nil)
		return
	}
	if err := payload.Labels.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	dryRun := strings.EqualFold(r.URL.Query().Get("dry_run"), "true")
	requestID := requestIDFrom(r.Context())

	log.Info("Starting allocation",
		"request_id", requestID, "vpc", payload.VPC,
		"hosts", payload.Hosts, "prefix_length", payload.PrefixLength, "dry_run", dryRun)

	result, err := allocator.Allocate(r.Context(), ipam.Request{
		VPC:          payload.VPC,
		Hosts:        payload.Hosts,
		PrefixLength: payload.PrefixLength,
		Labels:       payload.Labels.ToMap(),
		DryRun:       dryRun,
		RequestID:    requestID,
	})
	if err != nil {
		if failure, ok := ipam.AsFailure(err); ok {
			writeFailure(w, failure)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	response := dto.AllocationResponse{
		OK:                true,
		AllocationID:      result.AllocationID,
		DryRun:            result.DryRun,
		VPC:               result.VPC,
		PrimaryCIDR:       result.PrimaryBlock.String(),
		CGNATCIDR:         result.CGNATBlock.String(),
		PrimarySubnetSize: fmt.Sprintf("/%d", result.PrimaryPrefix),
		CGNATSubnetSize:   fmt.Sprintf("/%d", result.CGNATPrefix),
		UsablePrimary:     result.UsablePrimary,
		UsableCGNAT:       result.UsableCGNAT,
		RequestedHosts:    result.RequestedHosts,
		RequestedPrefix:   result.RequestedPrefix,
		Labels:            result.Labels,
	}
	if !result.DryRun {
		response.RequestID = result.RequestID
		log.Info("Allocation committed", "request_id", requestID, "allocation_id", result.AllocationID,
			"primary_cidr", response.PrimaryCIDR, "cgnat_cidr", response.CGNATCIDR)
	} else {
		log.Info("Dry run successful", "request_id", requestID,
			"primary_cidr", response.PrimaryCIDR, "cgnat_cidr", response.CGNATCIDR)
	}

	writeJSON(w, http.StatusOK, response)
}

func calculate(w http.ResponseWriter, r *http.Request) {
	hosts, err := optionalIntParam(r, "hosts")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "hosts must be an integer", nil)
		return
	}
	prefixLength, err := optionalIntParam(r, "prefix_length")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "prefix_length must be an integer", nil)
		return
	}

	sizing, err := allocator.Calculate(ipam.Request{Hosts: hosts, PrefixLength: prefixLength})
	if err != nil {
		if failure, ok := ipam.AsFailure(err); ok {
			writeFailure(w, failure)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
		return
	}

	writeJSON(w, http.StatusOK, dto.CalculateResponse{
		RequestedHosts:        sizing.RequestedHosts,
		RequestedPrefix:       sizing.RequestedPrefix,
		CalculatedPrefix:      sizing.CalculatedPrefix,
		PrimarySubnetSize:     fmt.Sprintf("/%d", sizing.CalculatedPrefix),
		CGNATSubnetSize:       fmt.Sprintf("/%d", sizing.CGNATPrefix),
		UsablePrimaryIPs:      sizing.UsablePrimary,
		UsableCGNATIPs:        sizing.UsableCGNAT,
		TotalAddressesPrimary: sizing.TotalAddressesPrimary,
		TotalAddressesCGNAT:   sizing.TotalAddressesCGNAT,
	})
}

func optionalIntParam(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
