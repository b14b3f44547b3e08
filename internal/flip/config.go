package flip

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPricingTimeout = 10 * time.Second
	defaultFlipWait       = 15 * time.Second
	defaultViewerIdleTTL  = 30 * time.Minute
	defaultViewerSweep    = time.Minute
	defaultMaxViewers     = 10000
)

// FlipConfig holds runtime configuration for the Flip module.
type FlipConfig struct {
	PricingURL     string
	PricingTimeout time.Duration
	FlipWait       time.Duration
	ViewerIdleTTL  time.Duration
	ViewerSweep    time.Duration
	MaxViewers     int
	CatalogPath    string
}

// LoadFlipConfig reads configuration from environment variables and applies defaults.
func LoadFlipConfig() (FlipConfig, error) {
	cfg := FlipConfig{
		PricingTimeout: defaultPricingTimeout,
		FlipWait:       defaultFlipWait,
		ViewerIdleTTL:  defaultViewerIdleTTL,
		ViewerSweep:    defaultViewerSweep,
		MaxViewers:     defaultMaxViewers,
	}

	cfg.PricingURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PRICING_SERVICE_URL")), "/")
	if cfg.PricingURL == "" {
		return FlipConfig{}, fmt.Errorf("PRICING_SERVICE_URL is required")
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"PRICING_TIMEOUT_SECONDS", &cfg.PricingTimeout},
		{"FLIP_WAIT_SECONDS", &cfg.FlipWait},
		{"VIEWER_IDLE_TTL_SECONDS", &cfg.ViewerIdleTTL},
		{"VIEWER_SWEEP_SECONDS", &cfg.ViewerSweep},
	}
	for _, d := range durations {
		v, err := readIntEnv(d.name)
		if err != nil {
			return FlipConfig{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v == nil {
			continue
		}
		if *v <= 0 {
			return FlipConfig{}, fmt.Errorf("%s must be positive", d.name)
		}
		*d.dst = time.Duration(*v) * time.Second
	}

	maxViewers, err := readIntEnv("VIEWER_MAX")
	if err != nil {
		return FlipConfig{}, fmt.Errorf("parse VIEWER_MAX: %w", err)
	}
	if maxViewers != nil {
		if *maxViewers <= 0 {
			return FlipConfig{}, fmt.Errorf("VIEWER_MAX must be positive")
		}
		cfg.MaxViewers = *maxViewers
	}

	cfg.CatalogPath = strings.TrimSpace(os.Getenv("CATALOG_PATH"))

	if cfg.FlipWait < cfg.PricingTimeout {
		return FlipConfig{}, fmt.Errorf("FLIP_WAIT_SECONDS must be >= PRICING_TIMEOUT_SECONDS")
	}
	return cfg, nil
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
