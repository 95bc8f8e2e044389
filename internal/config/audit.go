package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/congestion.audit/internal/trips"
	"github.com/banshee-data/congestion.audit/internal/units"
)

// DefaultConfigPath is the path to the canonical audit defaults file.
// This is the single source of truth for all default thresholds.
const DefaultConfigPath = "config/audit.defaults.json"

// Imputation strategies.
const (
	StrategyDrop     = "drop"
	StrategyMedian   = "median"
	StrategyMode     = "mode"
	StrategyConstant = "constant"
)

var validStrategies = []string{StrategyDrop, StrategyMedian, StrategyMode, StrategyConstant}

// ImputationPolicy describes how null values of one column are filled.
// Value is the constant for "constant" and the fallback for median/mode
// when the batch has no observed values.
type ImputationPolicy struct {
	Strategy string   `json:"strategy"`
	Value    *float64 `json:"value,omitempty"`
}

// ZoneSelection picks the target zones out of the zone polygon set. A zone
// is selected when its id is listed, or when it is in Borough (if set) and
// its name contains one of NameKeywords (case-insensitive).
type ZoneSelection struct {
	IDs          []int    `json:"ids,omitempty"`
	Borough      string   `json:"borough,omitempty"`
	NameKeywords []string `json:"name_keywords,omitempty"`
}

// CustomRule is an additional anomaly rule. Expr is evaluated against each
// record; a true result excludes the record with reason Code.
type CustomRule struct {
	Code string `json:"code"`
	Expr string `json:"expr"`
}

// AuditConfig represents the root configuration of a filter run.
// Pointer fields left nil fall back to the defaults of their Get* accessor,
// so partial configs are safe.
type AuditConfig struct {
	// Parsing
	NullMarkers      []string `json:"null_markers,omitempty"`
	TimestampLayouts []string `json:"timestamp_layouts,omitempty"`
	Timezone         *string  `json:"timezone,omitempty"`

	// Reporting
	ReportSpeedUnits *string `json:"report_speed_units,omitempty"`

	// Anomaly thresholds
	MinFare           *float64 `json:"min_fare,omitempty"`
	MinDistanceMiles  *float64 `json:"min_distance_miles,omitempty"`
	MaxPassengers     *int     `json:"max_passengers,omitempty"`
	MaxSpeedMPH       *float64 `json:"max_speed_mph,omitempty"`
	MinTripSeconds    *int     `json:"min_trip_seconds,omitempty"`
	RevenueAnomalyCap *float64 `json:"revenue_anomaly_cap,omitempty"`
	MaxTripDuration   *string  `json:"max_trip_duration,omitempty"` // duration string like "10h"

	Imputation  map[string]ImputationPolicy `json:"imputation,omitempty"`
	Zones       *ZoneSelection              `json:"zones,omitempty"`
	CustomRules []CustomRule                `json:"custom_rules,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAuditConfig returns an AuditConfig with all fields unset.
// Use LoadAuditConfig to load actual values from the defaults file.
func EmptyAuditConfig() *AuditConfig {
	return &AuditConfig{}
}

// LoadAuditConfig loads an AuditConfig from a JSON file.
// The file must have a .json extension and be under the max file size.
func LoadAuditConfig(path string) (*AuditConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyAuditConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical audit defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AuditConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ or deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadAuditConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AuditConfig) Validate() error {
	if c.Timezone != nil && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}

	if c.ReportSpeedUnits != nil && !units.IsValid(*c.ReportSpeedUnits) {
		return fmt.Errorf("report_speed_units must be one of: %s", units.GetValidUnitsString())
	}

	if c.MinDistanceMiles != nil && *c.MinDistanceMiles < 0 {
		return fmt.Errorf("min_distance_miles must be non-negative, got %f", *c.MinDistanceMiles)
	}

	if c.MaxPassengers != nil && *c.MaxPassengers < 1 {
		return fmt.Errorf("max_passengers must be at least 1, got %d", *c.MaxPassengers)
	}

	if c.MaxSpeedMPH != nil && *c.MaxSpeedMPH <= 0 {
		return fmt.Errorf("max_speed_mph must be positive, got %f", *c.MaxSpeedMPH)
	}

	if c.MinTripSeconds != nil && *c.MinTripSeconds < 0 {
		return fmt.Errorf("min_trip_seconds must be non-negative, got %d", *c.MinTripSeconds)
	}

	if c.MaxTripDuration != nil && *c.MaxTripDuration != "" {
		d, err := time.ParseDuration(*c.MaxTripDuration)
		if err != nil {
			return fmt.Errorf("invalid max_trip_duration '%s': %w", *c.MaxTripDuration, err)
		}
		if d <= 0 {
			return fmt.Errorf("max_trip_duration must be positive, got %s", d)
		}
	}

	for col, p := range c.Imputation {
		if !trips.IsImputable(col) {
			return fmt.Errorf("column %q is not imputable (allowed: %s)", col, strings.Join(trips.ImputableColumns, ", "))
		}
		if !isValidStrategy(p.Strategy) {
			return fmt.Errorf("imputation strategy for %s must be one of %s, got %q", col, strings.Join(validStrategies, ", "), p.Strategy)
		}
		if p.Strategy == StrategyConstant && p.Value == nil {
			return fmt.Errorf("imputation for %s: constant strategy requires a value", col)
		}
	}

	seen := make(map[string]bool, len(c.CustomRules))
	for i, r := range c.CustomRules {
		if r.Code == "" || r.Expr == "" {
			return fmt.Errorf("custom_rules[%d]: code and expr are required", i)
		}
		if seen[r.Code] {
			return fmt.Errorf("custom_rules[%d]: duplicate code %q", i, r.Code)
		}
		seen[r.Code] = true
	}

	return nil
}

func isValidStrategy(s string) bool {
	for _, v := range validStrategies {
		if s == v {
			return true
		}
	}
	return false
}

// GetNullMarkers returns the configured null markers or the TLC defaults.
func (c *AuditConfig) GetNullMarkers() []string {
	if len(c.NullMarkers) == 0 {
		return trips.DefaultNullMarkers
	}
	return c.NullMarkers
}

// GetTimestampLayouts returns the accepted timestamp layouts.
func (c *AuditConfig) GetTimestampLayouts() []string {
	if len(c.TimestampLayouts) == 0 {
		return []string{time.RFC3339, trips.TLCTimeLayout}
	}
	return c.TimestampLayouts
}

// GetTimezone returns the zone used for timestamps without an offset.
func (c *AuditConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "UTC"
	}
	return *c.Timezone
}

// GetLocation loads GetTimezone, falling back to UTC on error.
func (c *AuditConfig) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.GetTimezone())
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseOptions returns the row parsing options for this configuration.
func (c *AuditConfig) ParseOptions() trips.ParseOptions {
	return trips.ParseOptions{
		NullMarkers:      c.GetNullMarkers(),
		TimestampLayouts: c.GetTimestampLayouts(),
		Location:         c.GetLocation(),
	}
}

// GetReportSpeedUnits returns the units speeds are reported in.
func (c *AuditConfig) GetReportSpeedUnits() string {
	if c.ReportSpeedUnits == nil {
		return units.MPH
	}
	return *c.ReportSpeedUnits
}

// GetMinFare returns min_fare; fares at or below it are invalid.
func (c *AuditConfig) GetMinFare() float64 {
	if c.MinFare == nil {
		return 0
	}
	return *c.MinFare
}

// GetMinDistanceMiles returns min_distance_miles; distances at or below it are invalid.
func (c *AuditConfig) GetMinDistanceMiles() float64 {
	if c.MinDistanceMiles == nil {
		return 0.01
	}
	return *c.MinDistanceMiles
}

// GetMaxPassengers returns the max_passengers value or the default.
func (c *AuditConfig) GetMaxPassengers() int {
	if c.MaxPassengers == nil {
		return 9
	}
	return *c.MaxPassengers
}

// GetMaxSpeedMPH returns the max_speed_mph value or the default.
func (c *AuditConfig) GetMaxSpeedMPH() float64 {
	if c.MaxSpeedMPH == nil {
		return 65.0
	}
	return *c.MaxSpeedMPH
}

// GetMinTripDuration returns min_trip_seconds as a duration.
func (c *AuditConfig) GetMinTripDuration() time.Duration {
	if c.MinTripSeconds == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.MinTripSeconds) * time.Second
}

// GetRevenueAnomalyCap returns the revenue_anomaly_cap value or the default.
func (c *AuditConfig) GetRevenueAnomalyCap() float64 {
	if c.RevenueAnomalyCap == nil {
		return 20.0
	}
	return *c.RevenueAnomalyCap
}

// GetMaxTripDuration parses and returns MaxTripDuration.
func (c *AuditConfig) GetMaxTripDuration() time.Duration {
	if c.MaxTripDuration == nil || *c.MaxTripDuration == "" {
		return 10 * time.Hour
	}
	d, err := time.ParseDuration(*c.MaxTripDuration)
	if err != nil {
		return 10 * time.Hour
	}
	return d
}

// GetImputation returns the policy for col. Without an imputation section
// passenger_count is filled with the mode (fallback 1) and surcharge with 0;
// every other column, and any column absent from a configured section, is
// dropped when null.
func (c *AuditConfig) GetImputation(col string) ImputationPolicy {
	policies := c.Imputation
	if policies == nil {
		policies = defaultImputation
	}
	if p, ok := policies[col]; ok {
		return p
	}
	return ImputationPolicy{Strategy: StrategyDrop}
}

var defaultImputation = map[string]ImputationPolicy{
	trips.ColPassengerCount: {Strategy: StrategyMode, Value: ptrFloat64(1)},
	trips.ColSurcharge:      {Strategy: StrategyConstant, Value: ptrFloat64(0)},
}

// GetZones returns the zone selection, or nil when every loaded zone is a target.
func (c *AuditConfig) GetZones() *ZoneSelection {
	return c.Zones
}
