package dto

import (
	"errors"
	"strings"
	"time"
)

type AllocateRequest struct {
	VPC          string  `json:"vpc"`
	Hosts        *int    `json:"hosts,omitempty"`
	PrefixLength *int    `json:"prefix_length,omitempty"`
	Labels       *Labels `json:"labels,omitempty"`
}

// Labels restricts allocation metadata to the two supported keys.
type Labels struct {
	Environment string `json:"environment,omitempty"`
	Region      string `json:"region,omitempty"`
}

func (l *Labels) Validate() error {
	if l == nil {
		return nil
	}
	switch l.Environment {
	case "", "dev", "stage", "prod":
	default:
		return errors.New("environment must be one of dev, stage, prod")
	}
	if l.Region != "" && strings.TrimSpace(l.Region) == "" {
		return errors.New("region cannot be empty")
	}
	return nil
}

// ToMap drops empty values so the stored label set only holds what the
// caller actually sent.
func (l *Labels) ToMap() map[string]string {
	if l == nil {
		return map[string]string{}
	}
	out := map[string]string{}
	if l.Environment != "" {
		out["environment"] = l.Environment
	}
	if region := strings.TrimSpace(l.Region); region != "" {
		out["region"] = region
	}
	return out
}

type AllocationResponse struct {
	OK                bool              `json:"ok"`
	AllocationID      uint64            `json:"allocation_id,omitempty"`
	DryRun            bool              `json:"dry_run,omitempty"`
	VPC               string            `json:"vpc"`
	PrimaryCIDR       string            `json:"primary_cidr"`
	CGNATCIDR         string            `json:"cgnat_cidr"`
	PrimarySubnetSize string            `json:"primary_subnet_size"`
	CGNATSubnetSize   string            `json:"cgnat_subnet_size"`
	UsablePrimary     int               `json:"usable_primary"`
	UsableCGNAT       int               `json:"usable_cgnat"`
	RequestedHosts    *int              `json:"requested_hosts"`
	RequestedPrefix   *int              `json:"requested_prefix"`
	Labels            map[string]string `json:"labels"`
	RequestID         string            `json:"request_id,omitempty"`
}

type CalculateResponse struct {
	RequestedHosts        *int   `json:"requested_hosts"`
	RequestedPrefix       *int   `json:"requested_prefix"`
	CalculatedPrefix      int    `json:"calculated_prefix"`
	PrimarySubnetSize     string `json:"primary_subnet_size"`
	CGNATSubnetSize       string `json:"cgnat_subnet_size"`
	UsablePrimaryIPs      int    `json:"usable_primary_ips"`
	UsableCGNATIPs        int    `json:"usable_cgnat_ips"`
	TotalAddressesPrimary int    `json:"total_addresses_primary"`
	TotalAddressesCGNAT   int    `json:"total_addresses_cgnat"`
}

type AllocationRow struct {
	VPC             string            `json:"vpc"`
	AllocationID    uint64            `json:"allocation_id"`
	PrimaryCIDR     string            `json:"primary_cidr"`
	UsablePrimary   int               `json:"usable_primary"`
	CGNATCIDR       string            `json:"cgnat_cidr"`
	UsableCGNAT     int               `json:"usable_cgnat"`
	RequestedHosts  *int              `json:"requested_hosts"`
	RequestedPrefix *int              `json:"requested_prefix"`
	Labels          map[string]string `json:"labels"`
	RequestID       string            `json:"request_id"`
	CreatedAt       time.Time         `json:"created_at"`
}

type AllocationPage struct {
	TotalCount int64           `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int             `json:"offset"`
	Items      []AllocationRow `json:"items"`
}

type VPCRequest struct {
	Name string `json:"name"`
}

type ReassignRequest struct {
	NewVPCName string `json:"new_vpc_name"`
}
