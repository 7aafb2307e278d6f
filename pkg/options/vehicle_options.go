package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

// VehicleOptions describes the vehicle identity this gateway serves.
type VehicleOptions struct {
	// VIN is the vehicle identification number. If empty, it is discovered
	// from the environment at startup.
	VIN string `json:"vin" mapstructure:"vin"`

	// Model is the vehicle model string packages are matched against.
	Model string `json:"model" mapstructure:"model"`

	// ModelYear is the vehicle's model year, matched against the year a
	// package was built for.
	ModelYear uint16 `json:"model-year" mapstructure:"model-year"`

	// HeartbeatInterval is the cadence of liveness reports to the backend.
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
}

// NewVehicleOptions creates a VehicleOptions object with default parameters.
func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.VIN != "" && len(o.VIN) != 17 {
		errors = append(errors, fmt.Errorf("vin must be 17 characters, got %d", len(o.VIN)))
	}
	if o.ModelYear == 0 {
		errors = append(errors, fmt.Errorf("model year is required"))
	}
	if o.HeartbeatInterval < time.Second {
		errors = append(errors, fmt.Errorf("heartbeat interval must be at least 1s, got %s", o.HeartbeatInterval))
	}

	return errors
}

// AddFlags adds flags for VehicleOptions to the specified FlagSet.
func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.VIN, "vehicle.vin", o.VIN, "Vehicle identification number (17 characters).")
	fs.StringVar(&o.Model, "vehicle.model", o.Model, "Vehicle model string.")
	fs.Uint16Var(&o.ModelYear, "vehicle.model-year", o.ModelYear, "Vehicle model year.")
	fs.DurationVar(&o.HeartbeatInterval, "vehicle.heartbeat-interval", o.HeartbeatInterval, "Interval between heartbeat reports.")
}
