package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ReadinessOptions)(nil)

// ReadinessOptions contains the thresholds a vehicle must satisfy before
// an OTA campaign is allowed to start.
type ReadinessOptions struct {
	MinBatteryPercent int `json:"min-battery-percent" mapstructure:"min-battery-percent"`
	MinFreeSpaceMB    int `json:"min-free-space-mb" mapstructure:"min-free-space-mb"`
	MaxTemperature    int `json:"max-temperature" mapstructure:"max-temperature"`

	CheckEngineOff     bool `json:"check-engine-off" mapstructure:"check-engine-off"`
	CheckParkingBrake  bool `json:"check-parking-brake" mapstructure:"check-parking-brake"`
	CheckNetworkStable bool `json:"check-network-stable" mapstructure:"check-network-stable"`

	// AmbientTemperature and NetworkStable stand in for sensor inputs
	// that have no on-wire source yet.
	AmbientTemperature int  `json:"ambient-temperature" mapstructure:"ambient-temperature"`
	NetworkStable      bool `json:"network-stable" mapstructure:"network-stable"`
}

// NewReadinessOptions creates a ReadinessOptions object with default parameters.
func NewReadinessOptions() *ReadinessOptions {
	return &ReadinessOptions{
		MinBatteryPercent:  50,
		MinFreeSpaceMB:     500,
		MaxTemperature:     70,
		CheckEngineOff:     true,
		CheckParkingBrake:  true,
		CheckNetworkStable: true,
		AmbientTemperature: 45,
		NetworkStable:      true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *ReadinessOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.MinBatteryPercent < 0 || o.MinBatteryPercent > 100 {
		errors = append(errors, fmt.Errorf("min battery percent must be in [0,100], got %d", o.MinBatteryPercent))
	}
	if o.MinFreeSpaceMB < 0 {
		errors = append(errors, fmt.Errorf("min free space must not be negative, got %d", o.MinFreeSpaceMB))
	}

	return errors
}

// AddFlags adds flags for ReadinessOptions to the specified FlagSet.
func (o *ReadinessOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.MinBatteryPercent, "readiness.min-battery-percent", o.MinBatteryPercent, "Minimum battery percentage required for OTA.")
	fs.IntVar(&o.MinFreeSpaceMB, "readiness.min-free-space-mb", o.MinFreeSpaceMB, "Minimum free space in MB required for OTA.")
	fs.IntVar(&o.MaxTemperature, "readiness.max-temperature", o.MaxTemperature, "Maximum temperature in Celsius allowed for OTA.")
	fs.BoolVar(&o.CheckEngineOff, "readiness.check-engine-off", o.CheckEngineOff, "Require the engine to be off.")
	fs.BoolVar(&o.CheckParkingBrake, "readiness.check-parking-brake", o.CheckParkingBrake, "Require the parking brake to be engaged.")
	fs.BoolVar(&o.CheckNetworkStable, "readiness.check-network-stable", o.CheckNetworkStable, "Require a stable network connection.")
	fs.IntVar(&o.AmbientTemperature, "readiness.ambient-temperature", o.AmbientTemperature, "Assumed ambient temperature in Celsius until a sensor feed exists.")
	fs.BoolVar(&o.NetworkStable, "readiness.network-stable", o.NetworkStable, "Assumed network stability until a link monitor exists.")
}
