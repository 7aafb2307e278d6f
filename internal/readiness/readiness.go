// Package readiness decides whether the vehicle may start an OTA
// campaign, based on per-ECU readiness records and configured
// thresholds.
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// Thresholds are the configured minimums a vehicle must meet.
type Thresholds struct {
	MinBatteryPercent  int
	MinFreeSpaceMB     int
	MaxTemperature     int
	CheckEngineOff     bool
	CheckParkingBrake  bool
	CheckNetworkStable bool
}

// Environment carries inputs with no on-wire source yet. They default
// to permissive values and are overridden from config.
type Environment struct {
	Temperature   int
	NetworkStable bool
}

// DefaultEnvironment returns the placeholder inputs used until the
// sensors are wired up.
func DefaultEnvironment() Environment {
	return Environment{Temperature: 45, NetworkStable: true}
}

// Summary aggregates the readiness records of every reporting ECU.
type Summary struct {
	ECUCount          int  `json:"ecu_count"`
	MinBatteryPercent int  `json:"min_battery_percent"`
	MinMemoryMB       int  `json:"min_memory_mb"`
	AllParked         bool `json:"all_parked"`
	AllEngineOff      bool `json:"all_engine_off"`
	AllDoorsClosed    bool `json:"all_doors_closed"`
	AllCompatible     bool `json:"all_compatible"`
	AllReady          bool `json:"all_ready"`
}

// Report is the published readiness document.
type Report struct {
	VIN       string    `json:"vin"`
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Ready     bool      `json:"ready"`
	Reasons   []string  `json:"reasons,omitempty"`
}

// BatteryPercent converts a 12V system voltage reading to a rough
// charge percentage: 11.0V empty, 12.0V full.
func BatteryPercent(milliVolts uint16) int {
	pct := (int(milliVolts) - 11000) / 10
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Aggregate folds per-ECU records into vehicle-level minimums. The
// boolean conditions hold only when every ECU reports them.
func Aggregate(records []doip.ReadinessRecord) Summary {
	s := Summary{
		ECUCount:       len(records),
		AllParked:      len(records) > 0,
		AllEngineOff:   len(records) > 0,
		AllDoorsClosed: len(records) > 0,
		AllCompatible:  len(records) > 0,
		AllReady:       len(records) > 0,
	}

	for i, r := range records {
		battery := BatteryPercent(r.BatteryMilliVolts)
		memoryMB := int(r.AvailableMemoryKB / 1024)
		if i == 0 || battery < s.MinBatteryPercent {
			s.MinBatteryPercent = battery
		}
		if i == 0 || memoryMB < s.MinMemoryMB {
			s.MinMemoryMB = memoryMB
		}
		s.AllParked = s.AllParked && r.VehicleParked
		s.AllEngineOff = s.AllEngineOff && r.EngineOff
		s.AllDoorsClosed = s.AllDoorsClosed && r.AllDoorsClosed
		s.AllCompatible = s.AllCompatible && r.SWCompatible
		s.AllReady = s.AllReady && r.ReadyForUpdate
	}
	return s
}

// Evaluate checks a summary against the thresholds and returns the
// verdict with the failing conditions.
func Evaluate(s Summary, t Thresholds, env Environment) (bool, []string) {
	var reasons []string

	if s.ECUCount == 0 {
		reasons = append(reasons, "no ECU reported readiness")
	}
	if s.MinBatteryPercent < t.MinBatteryPercent {
		reasons = append(reasons, fmt.Sprintf("battery %d%% below minimum %d%%", s.MinBatteryPercent, t.MinBatteryPercent))
	}
	if s.MinMemoryMB < t.MinFreeSpaceMB {
		reasons = append(reasons, fmt.Sprintf("free space %dMB below minimum %dMB", s.MinMemoryMB, t.MinFreeSpaceMB))
	}
	if env.Temperature > t.MaxTemperature {
		reasons = append(reasons, fmt.Sprintf("temperature %d above maximum %d", env.Temperature, t.MaxTemperature))
	}
	if t.CheckParkingBrake && !s.AllParked {
		reasons = append(reasons, "vehicle not parked")
	}
	if t.CheckEngineOff && !s.AllEngineOff {
		reasons = append(reasons, "engine not off")
	}
	if t.CheckNetworkStable && !env.NetworkStable {
		reasons = append(reasons, "network unstable")
	}
	if s.ECUCount > 0 && !s.AllCompatible {
		reasons = append(reasons, "software incompatibility reported")
	}
	if s.ECUCount > 0 && !s.AllReady {
		reasons = append(reasons, "at least one ECU not ready")
	}

	return len(reasons) == 0, reasons
}

// Collector gathers readiness records from the primary zonal gateway
// and evaluates them.
type Collector struct {
	vin        string
	doip       doip.Config
	thresholds Thresholds
	env        Environment
	logger     log.Logger
}

// NewCollector creates a collector that dials cfg.Endpoint.
func NewCollector(vin string, cfg doip.Config, thresholds Thresholds, env Environment) *Collector {
	return &Collector{
		vin:        vin,
		doip:       cfg,
		thresholds: thresholds,
		env:        env,
		logger:     log.WithName("readiness"),
	}
}

// Collect runs the readiness routine pair and evaluates the result.
func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	client := doip.NewClient(c.doip)
	if err := client.Connect(ctx); err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("readiness", "failed").Inc()
		return nil, err
	}
	defer client.Close()

	records, err := client.CollectReadiness()
	if err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("readiness", "failed").Inc()
		return nil, err
	}
	metrics.DoIPRequestsTotal.WithLabelValues("readiness", "success").Inc()

	summary := Aggregate(records)
	ready, reasons := Evaluate(summary, c.thresholds, c.env)

	c.logger.Info("Readiness evaluated", "ecus", summary.ECUCount, "ready", ready)
	return &Report{
		VIN:       c.vin,
		Timestamp: time.Now().UTC(),
		Summary:   summary,
		Ready:     ready,
		Reasons:   reasons,
	}, nil
}
