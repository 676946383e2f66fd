package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/gt3x/internal/units"
)

// Output formats.
const (
	FormatActiLife = "actilife"
	FormatPlain    = "plain"
)

// Defaults used by the Get* accessors.
const (
	DefaultFormat          = FormatActiLife
	DefaultTimestampLayout = "2006-01-02 15:04:05.000"
	DefaultDecimals        = 3
	DefaultRawDecimals     = 0
	DefaultUnits           = units.G
	DefaultTimezone        = "UTC"
	DefaultPayloadEncoding = "auto"
	DefaultKafkaTopic      = "gt3x.samples"
	DefaultKafkaBatchSize  = 500
	DefaultDBBatchSize     = 1000
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ExportConfig controls how a decoded file is exported. Every field is
// optional; the Get* methods supply defaults, so partial files are safe.
type ExportConfig struct {
	// CSV output
	Format          *string `json:"format,omitempty" yaml:"format,omitempty"`                     // actilife | plain
	TimestampLayout *string `json:"timestamp_layout,omitempty" yaml:"timestamp_layout,omitempty"` // Go time layout
	Decimals        *int    `json:"decimals,omitempty" yaml:"decimals,omitempty"`
	Units           *string `json:"units,omitempty" yaml:"units,omitempty"`       // g | mps2
	Timezone        *string `json:"timezone,omitempty" yaml:"timezone,omitempty"` // IANA name or "device"

	// Decoder
	PayloadEncoding *string `json:"payload_encoding,omitempty" yaml:"payload_encoding,omitempty"`
	Raw             *bool   `json:"raw,omitempty" yaml:"raw,omitempty"`
	StrictChecksum  *bool   `json:"strict_checksum,omitempty" yaml:"strict_checksum,omitempty"`

	// Optional sinks; empty disables the sink.
	DBPath      *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DBBatchSize *int    `json:"db_batch_size,omitempty" yaml:"db_batch_size,omitempty"`
	PlotPath    *string `json:"plot_path,omitempty" yaml:"plot_path,omitempty"`
	ChartPath   *string `json:"chart_path,omitempty" yaml:"chart_path,omitempty"`

	KafkaBrokers   []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic     *string  `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
	KafkaBatchSize *int     `json:"kafka_batch_size,omitempty" yaml:"kafka_batch_size,omitempty"`
}

// EmptyExportConfig returns an ExportConfig with all fields unset.
func EmptyExportConfig() *ExportConfig {
	return &ExportConfig{}
}

// LoadExportConfig loads an ExportConfig from a .json, .yaml or .yml file and
// validates it.
func LoadExportConfig(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExportConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ExportConfig) Validate() error {
	if c.Format != nil {
		switch *c.Format {
		case FormatActiLife, FormatPlain:
		default:
			return fmt.Errorf("format must be %q or %q, got %q", FormatActiLife, FormatPlain, *c.Format)
		}
	}

	if c.Decimals != nil && (*c.Decimals < 0 || *c.Decimals > 12) {
		return fmt.Errorf("decimals must be between 0 and 12, got %d", *c.Decimals)
	}

	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}

	if c.Timezone != nil && *c.Timezone != units.DeviceTimezone && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}

	if c.PayloadEncoding != nil {
		switch strings.ToLower(*c.PayloadEncoding) {
		case "", "auto", "short8", "int16", "int24", "packed12":
		default:
			return fmt.Errorf("invalid payload_encoding %q", *c.PayloadEncoding)
		}
	}

	if c.TimestampLayout != nil && strings.TrimSpace(*c.TimestampLayout) == "" {
		return fmt.Errorf("timestamp_layout must not be blank")
	}

	if c.KafkaBatchSize != nil && *c.KafkaBatchSize <= 0 {
		return fmt.Errorf("kafka_batch_size must be positive, got %d", *c.KafkaBatchSize)
	}
	if c.DBBatchSize != nil && *c.DBBatchSize <= 0 {
		return fmt.Errorf("db_batch_size must be positive, got %d", *c.DBBatchSize)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic != nil && *c.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic must not be empty when kafka_brokers is set")
	}

	return nil
}

// GetFormat returns the CSV format or the default.
func (c *ExportConfig) GetFormat() string {
	if c.Format == nil {
		return DefaultFormat
	}
	return *c.Format
}

// GetTimestampLayout returns the plain-CSV timestamp layout or the default.
func (c *ExportConfig) GetTimestampLayout() string {
	if c.TimestampLayout == nil {
		return DefaultTimestampLayout
	}
	return *c.TimestampLayout
}

// GetDecimals returns the number of decimals written per axis or the default:
// DefaultRawDecimals for raw counts, DefaultDecimals otherwise.
func (c *ExportConfig) GetDecimals() int {
	if c.Decimals == nil {
		if c.GetRaw() {
			return DefaultRawDecimals
		}
		return DefaultDecimals
	}
	return *c.Decimals
}

// GetUnits returns the output acceleration unit or the default.
func (c *ExportConfig) GetUnits() string {
	if c.Units == nil {
		return DefaultUnits
	}
	return *c.Units
}

// GetTimezone returns the timezone timestamps are written in, or the default.
func (c *ExportConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return DefaultTimezone
	}
	return *c.Timezone
}

// GetPayloadEncoding returns the forced payload encoding, or "auto".
func (c *ExportConfig) GetPayloadEncoding() string {
	if c.PayloadEncoding == nil || *c.PayloadEncoding == "" {
		return DefaultPayloadEncoding
	}
	return strings.ToLower(*c.PayloadEncoding)
}

// GetRaw reports whether calibration is skipped.
func (c *ExportConfig) GetRaw() bool {
	if c.Raw == nil {
		return false
	}
	return *c.Raw
}

// GetStrictChecksum reports whether checksum mismatches fail the export.
func (c *ExportConfig) GetStrictChecksum() bool {
	if c.StrictChecksum == nil {
		return false
	}
	return *c.StrictChecksum
}

// GetDBPath returns the sqlite path, or "" when the store is disabled.
func (c *ExportConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetDBBatchSize returns the number of samples per insert transaction.
func (c *ExportConfig) GetDBBatchSize() int {
	if c.DBBatchSize == nil {
		return DefaultDBBatchSize
	}
	return *c.DBBatchSize
}

// GetPlotPath returns the PNG plot path, or "" when disabled.
func (c *ExportConfig) GetPlotPath() string {
	if c.PlotPath == nil {
		return ""
	}
	return *c.PlotPath
}

// GetChartPath returns the HTML chart path, or "" when disabled.
func (c *ExportConfig) GetChartPath() string {
	if c.ChartPath == nil {
		return ""
	}
	return *c.ChartPath
}

// GetKafkaTopic returns the Kafka topic or the default.
func (c *ExportConfig) GetKafkaTopic() string {
	if c.KafkaTopic == nil || *c.KafkaTopic == "" {
		return DefaultKafkaTopic
	}
	return *c.KafkaTopic
}

// GetKafkaBatchSize returns the number of samples per Kafka message.
func (c *ExportConfig) GetKafkaBatchSize() int {
	if c.KafkaBatchSize == nil {
		return DefaultKafkaBatchSize
	}
	return *c.KafkaBatchSize
}

// Merge copies every field set in o over c. Command-line flags are applied
// this way on top of a loaded file.
func (c *ExportConfig) Merge(o *ExportConfig) {
	if o == nil {
		return
	}
	if o.Format != nil {
		c.Format = o.Format
	}
	if o.TimestampLayout != nil {
		c.TimestampLayout = o.TimestampLayout
	}
	if o.Decimals != nil {
		c.Decimals = o.Decimals
	}
	if o.Units != nil {
		c.Units = o.Units
	}
	if o.Timezone != nil {
		c.Timezone = o.Timezone
	}
	if o.PayloadEncoding != nil {
		c.PayloadEncoding = o.PayloadEncoding
	}
	if o.Raw != nil {
		c.Raw = o.Raw
	}
	if o.StrictChecksum != nil {
		c.StrictChecksum = o.StrictChecksum
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.DBBatchSize != nil {
		c.DBBatchSize = o.DBBatchSize
	}
	if o.PlotPath != nil {
		c.PlotPath = o.PlotPath
	}
	if o.ChartPath != nil {
		c.ChartPath = o.ChartPath
	}
	if len(o.KafkaBrokers) > 0 {
		c.KafkaBrokers = o.KafkaBrokers
	}
	if o.KafkaTopic != nil {
		c.KafkaTopic = o.KafkaTopic
	}
	if o.KafkaBatchSize != nil {
		c.KafkaBatchSize = o.KafkaBatchSize
	}
}

// Helper functions to create pointers
func StringPtr(v string) *string { return &v }
func IntPtr(v int) *int          { return &v }
func BoolPtr(v bool) *bool       { return &v }
