package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config holds the application configuration
type Config struct {
	Ingest    IngestConfig    `yaml:"ingest"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Stitch    StitchConfig    `yaml:"stitch"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// IngestConfig controls the translation of raw trace bundles
type IngestConfig struct {
	// TimezoneMinutes is added to the epoch-microsecond timestamps when
	// converting to date-times, as the source files carry no zone info.
	TimezoneMinutes int `yaml:"timezone_minutes"`
	// MaxLogMsgLength caps span log messages; longer messages are truncated.
	MaxLogMsgLength int `yaml:"max_log_msg_length"`
}

// AnalysisConfig controls the per-run statistics phase
type AnalysisConfig struct {
	// CachingServices lists the services treated as caches when labelling
	// call chains.
	CachingServices []string `yaml:"caching_services"`
	// CallChainFolder holds the per-endpoint .cchain catalogue files. A
	// relative path is resolved below the trace folder.
	CallChainFolder string `yaml:"call_chain_folder"`
	// CommaFloat emits ',' as decimal separator in CSV output.
	CommaFloat bool `yaml:"comma_float"`
	// OutputExt selects the stats-file format: "json" or "bincode".
	OutputExt string `yaml:"output_ext"`
}

// StitchConfig controls stitching and anomaly detection
type StitchConfig struct {
	// DropCount removes services whose summed inbound+unknown call count
	// over all snapshots does not exceed this value.
	DropCount int `yaml:"drop_count"`
	// ShortTermWindow is the trailing window for the short-term regression.
	ShortTermWindow int `yaml:"short_term_window"`
	// ScaledSlopeBound triggers an anomaly when |slope / (2*mean)| exceeds it.
	ScaledSlopeBound float64 `yaml:"scaled_slope_bound"`
	// ScaledSTSlopeBound is the short-term variant of ScaledSlopeBound.
	ScaledSTSlopeBound float64 `yaml:"scaled_st_slope_bound"`
	// L1DeviationBound triggers when the last residual exceeds this multiple
	// of the mean absolute residual.
	L1DeviationBound float64 `yaml:"l1_deviation_bound"`
}

// DashboardConfig holds server-related configuration
type DashboardConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			TimezoneMinutes: 0,
			MaxLogMsgLength: 100,
		},
		Analysis: AnalysisConfig{
			CallChainFolder: "CallChain",
			OutputExt:       "json",
		},
		Stitch: StitchConfig{
			DropCount:          0,
			ShortTermWindow:    5,
			ScaledSlopeBound:   0.05,
			ScaledSTSlopeBound: 0.05,
			L1DeviationBound:   2.0,
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: 8399,
		},
	}
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg.withEnv(), nil
}

// LoadFromEnv loads configuration from environment variables on top of the
// defaults.
func LoadFromEnv() *Config {
	return DefaultConfig().withEnv()
}

func (c *Config) withEnv() *Config {
	if tz := os.Getenv("SPANLENS_TZ_MINUTES"); tz != "" {
		if v, err := strconv.Atoi(tz); err == nil {
			c.Ingest.TimezoneMinutes = v
		}
	}
	if max := os.Getenv("SPANLENS_MAX_LOG_MSG"); max != "" {
		if v, err := strconv.Atoi(max); err == nil {
			c.Ingest.MaxLogMsgLength = v
		}
	}
	if caching := os.Getenv("SPANLENS_CACHING_SERVICES"); caching != "" {
		c.Analysis.CachingServices = splitNonEmpty(caching)
	}
	if folder := os.Getenv("SPANLENS_CCHAIN_FOLDER"); folder != "" {
		c.Analysis.CallChainFolder = folder
	}
	if comma := os.Getenv("SPANLENS_COMMA_FLOAT"); comma != "" {
		if v, err := strconv.ParseBool(comma); err == nil {
			c.Analysis.CommaFloat = v
		}
	}
	if host := os.Getenv("SPANLENS_HOST"); host != "" {
		c.Dashboard.Host = host
	}
	if port := os.Getenv("SPANLENS_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			c.Dashboard.Port = v
		}
	}
	return c
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetServerAddr returns the dashboard address string
func (c *Config) GetServerAddr() string {
	return c.Dashboard.Host + ":" + strconv.Itoa(c.Dashboard.Port)
}
