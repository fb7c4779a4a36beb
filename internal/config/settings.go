package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"ipam/internal/ipam"

	"github.com/charmbracelet/log"
)

// Config holds the allocation parameters. The defaults mirror the values
// existing deployments run with; changing them changes which blocks get
// handed out.
type Config struct {
	Pools struct {
		Primary string `json:"primary"`
		CGNAT   string `json:"cgnat"`
	} `json:"pools"`

	Policy struct {
		Reserve     int `json:"reserve"`
		MinPrefix   int `json:"min_prefix"`
		MaxPrefix   int `json:"max_prefix"`
		CGNATOffset int `json:"cgnat_offset"`
	} `json:"policy"`

	Retry struct {
		MaxAttempts int `json:"max_attempts"`
		BackoffMs   int `json:"backoff_ms"`
	} `json:"retry"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value

	InProductionMode bool
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("config: bad embedded defaults: %v", err))
	}
	configValue.Store(cfg)
}

// ReadSettings loads data/settings.json, writing it out from the
// embedded defaults first when it does not exist yet.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if _, err := newConfig.AllocatorOptions(); err != nil {
		log.Error("Error validating settings file:", err)
		return
	}

	configValue.Store(newConfig)
	log.Debug("Settings file loaded successfully")
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetConfig(newConfig Config) {
	configValue.Store(newConfig)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

// AllocatorOptions validates the configuration and translates it into
// allocator options. The two pools must parse as IPv4 prefixes and must
// be disjoint.
func (c Config) AllocatorOptions() ([]ipam.Option, error) {
	primary, err := ipam.ParseBlock(c.Pools.Primary)
	if err != nil {
		return nil, fmt.Errorf("config: primary pool: %w", err)
	}
	cgnat, err := ipam.ParseBlock(c.Pools.CGNAT)
	if err != nil {
		return nil, fmt.Errorf("config: cgnat pool: %w", err)
	}
	if !primary.Addr().Is4() || !cgnat.Addr().Is4() {
		return nil, fmt.Errorf("config: pools must be IPv4 prefixes")
	}
	if primary.Overlaps(cgnat) {
		return nil, fmt.Errorf("config: pools %s and %s overlap", primary, cgnat)
	}

	policy := ipam.Policy{
		Reserve:     c.Policy.Reserve,
		MinPrefix:   c.Policy.MinPrefix,
		MaxPrefix:   c.Policy.MaxPrefix,
		CGNATOffset: c.Policy.CGNATOffset,
	}
	if policy.MinPrefix > policy.MaxPrefix {
		return nil, fmt.Errorf("config: min_prefix /%d larger than max_prefix /%d", policy.MinPrefix, policy.MaxPrefix)
	}

	return []ipam.Option{
		ipam.WithPools(primary, cgnat),
		ipam.WithPolicy(policy),
		ipam.WithMaxAttempts(c.Retry.MaxAttempts),
		ipam.WithRetryBackoff(time.Duration(c.Retry.BackoffMs) * time.Millisecond),
	}, nil
}
