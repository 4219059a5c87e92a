package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gritlab/sandtable/internal/terrain"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Hard fallbacks used when a field is absent from the JSON.
const (
	defaultGridWidth      = 100
	defaultGridHeight     = 75
	defaultTickRate       = 30
	defaultQueueDepth     = 256
	defaultRecordInterval = 30
	defaultUDPLogInterval = time.Minute
)

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates. All fields
// are pointers so a partial config only overrides what it mentions.
type TuningConfig struct {
	// Grid params
	GridWidth  *int `json:"grid_width,omitempty"`
	GridHeight *int `json:"grid_height,omitempty"`

	// Engine params
	TickRate   *int `json:"tick_rate,omitempty"`
	QueueDepth *int `json:"queue_depth,omitempty"`

	// Simulation params
	Retention    *float64 `json:"retention,omitempty"`
	FlowFraction *float64 `json:"flow_fraction,omitempty"`
	WaterEpsilon *float64 `json:"water_epsilon,omitempty"`
	BlendAlpha   *float64 `json:"blend_alpha,omitempty"`

	// Sensor params
	SensorBaudRate *int `json:"sensor_baud_rate,omitempty"`
	SensorDataBits *int `json:"sensor_data_bits,omitempty"`
	SensorStopBits *int `json:"sensor_stop_bits,omitempty"`

	// Ingest and recording params
	UDPLogInterval *string `json:"udp_log_interval,omitempty"` // duration string like "60s"
	RecordInterval *int    `json:"record_interval,omitempty"`  // record every Nth tick
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Unset fields
// are always valid because the accessors fall back to defaults.
func (c *TuningConfig) Validate() error {
	if c.GridWidth != nil && *c.GridWidth <= 0 {
		return fmt.Errorf("grid_width must be positive, got %d", *c.GridWidth)
	}
	if c.GridHeight != nil && *c.GridHeight <= 0 {
		return fmt.Errorf("grid_height must be positive, got %d", *c.GridHeight)
	}
	if c.TickRate != nil && (*c.TickRate < 1 || *c.TickRate > 240) {
		return fmt.Errorf("tick_rate must be between 1 and 240, got %d", *c.TickRate)
	}
	if c.QueueDepth != nil && *c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", *c.QueueDepth)
	}
	if c.RecordInterval != nil && *c.RecordInterval <= 0 {
		return fmt.Errorf("record_interval must be positive, got %d", *c.RecordInterval)
	}
	if c.SensorBaudRate != nil && *c.SensorBaudRate <= 0 {
		return fmt.Errorf("sensor_baud_rate must be positive, got %d", *c.SensorBaudRate)
	}

	// Validate UDPLogInterval can be parsed if set
	if c.UDPLogInterval != nil && *c.UDPLogInterval != "" {
		if _, err := time.ParseDuration(*c.UDPLogInterval); err != nil {
			return fmt.Errorf("invalid udp_log_interval '%s': %w", *c.UDPLogInterval, err)
		}
	}

	// The simulation params validate as a set so range rules live in one place.
	if err := c.Params().Validate(); err != nil {
		return err
	}

	return nil
}

// GetGridWidth returns the grid_width value or the default.
func (c *TuningConfig) GetGridWidth() int {
	if c.GridWidth == nil {
		return defaultGridWidth
	}
	return *c.GridWidth
}

// GetGridHeight returns the grid_height value or the default.
func (c *TuningConfig) GetGridHeight() int {
	if c.GridHeight == nil {
		return defaultGridHeight
	}
	return *c.GridHeight
}

// GetTickRate returns the tick_rate value or the default.
func (c *TuningConfig) GetTickRate() int {
	if c.TickRate == nil {
		return defaultTickRate
	}
	return *c.TickRate
}

// GetQueueDepth returns the queue_depth value or the default.
func (c *TuningConfig) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return defaultQueueDepth
	}
	return *c.QueueDepth
}

// GetRecordInterval returns how many ticks pass between recorded snapshots.
func (c *TuningConfig) GetRecordInterval() int {
	if c.RecordInterval == nil {
		return defaultRecordInterval
	}
	return *c.RecordInterval
}

// GetUDPLogInterval parses and returns the UDPLogInterval as a time.Duration.
func (c *TuningConfig) GetUDPLogInterval() time.Duration {
	if c.UDPLogInterval == nil || *c.UDPLogInterval == "" {
		return defaultUDPLogInterval
	}
	d, err := time.ParseDuration(*c.UDPLogInterval)
	if err != nil {
		return defaultUDPLogInterval // default on parse error
	}
	return d
}

// Sensor getters return zero when unset; the serial layer normalizes zero
// values to the hardware defaults.

// GetSensorBaudRate returns the sensor_baud_rate value or zero.
func (c *TuningConfig) GetSensorBaudRate() int {
	if c.SensorBaudRate == nil {
		return 0
	}
	return *c.SensorBaudRate
}

// GetSensorDataBits returns the sensor_data_bits value or zero.
func (c *TuningConfig) GetSensorDataBits() int {
	if c.SensorDataBits == nil {
		return 0
	}
	return *c.SensorDataBits
}

// GetSensorStopBits returns the sensor_stop_bits value or zero.
func (c *TuningConfig) GetSensorStopBits() int {
	if c.SensorStopBits == nil {
		return 0
	}
	return *c.SensorStopBits
}

// Params assembles the terrain simulation parameters, falling back to the
// built-in defaults for any unset field.
func (c *TuningConfig) Params() terrain.Params {
	p := terrain.DefaultParams()
	if c.Retention != nil {
		p.Retention = *c.Retention
	}
	if c.FlowFraction != nil {
		p.FlowFraction = *c.FlowFraction
	}
	if c.WaterEpsilon != nil {
		p.WaterEpsilon = *c.WaterEpsilon
	}
	if c.BlendAlpha != nil {
		p.BlendAlpha = *c.BlendAlpha
	}
	return p
}

// ApplyParams copies simulation parameters back into the config, keeping
// the runtime /api/params view and the file schema in sync.
func (c *TuningConfig) ApplyParams(p terrain.Params) {
	c.Retention = ptrFloat64(p.Retention)
	c.FlowFraction = ptrFloat64(p.FlowFraction)
	c.WaterEpsilon = ptrFloat64(p.WaterEpsilon)
	c.BlendAlpha = ptrFloat64(p.BlendAlpha)
}
