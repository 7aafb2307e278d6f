package options

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
)

var _ IOptions = (*DoipOptions)(nil)

// DoipOptions contains configuration for the DoIP client side of the
// gateway: logical addresses, timeouts and the zone routing table.
type DoipOptions struct {
	// SourceAddr is the gateway's own logical address.
	SourceAddr uint16 `json:"source-addr" mapstructure:"source-addr"`

	// TargetAddr is the logical address of the zonal gateway.
	TargetAddr uint16 `json:"target-addr" mapstructure:"target-addr"`

	ConnectTimeout    time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ActivationTimeout time.Duration `json:"activation-timeout" mapstructure:"activation-timeout"`
	DiagTimeout       time.Duration `json:"diag-timeout" mapstructure:"diag-timeout"`

	// PrimaryEndpoint is the ZGW used for VCI and readiness collection.
	PrimaryEndpoint string `json:"primary-endpoint" mapstructure:"primary-endpoint"`

	// Routes maps zone number ranges to ZGW endpoints, each entry in the
	// form "low-high=host:port" (e.g. "1-4=192.168.1.10:13400").
	Routes []string `json:"routes" mapstructure:"routes"`
}

// NewDoipOptions creates a DoipOptions object with default parameters.
func NewDoipOptions() *DoipOptions {
	return &DoipOptions{
		SourceAddr:        0x0200,
		TargetAddr:        0x0100,
		ConnectTimeout:    3 * time.Second,
		ActivationTimeout: 2 * time.Second,
		DiagTimeout:       5 * time.Second,
		PrimaryEndpoint:   "192.168.1.10:13400",
		Routes: []string{
			"1-4=192.168.1.10:13400",
			"5-8=192.168.1.11:13400",
			"9-16=192.168.1.12:13400",
		},
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DoipOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.PrimaryEndpoint); err != nil {
		errors = append(errors, err)
	}

	if _, err := swpkg.ParseRoutingTable(o.Routes); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for DoipOptions to the specified FlagSet.
func (o *DoipOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Uint16Var(&o.SourceAddr, "doip.source-addr", o.SourceAddr, "Logical source address of the gateway.")
	fs.Uint16Var(&o.TargetAddr, "doip.target-addr", o.TargetAddr, "Logical address of the zonal gateway.")
	fs.DurationVar(&o.ConnectTimeout, "doip.connect-timeout", o.ConnectTimeout, "TCP connect timeout for DoIP sessions.")
	fs.DurationVar(&o.ActivationTimeout, "doip.activation-timeout", o.ActivationTimeout, "Timeout for routing activation responses.")
	fs.DurationVar(&o.DiagTimeout, "doip.diag-timeout", o.DiagTimeout, "Timeout for diagnostic responses.")
	fs.StringVar(&o.PrimaryEndpoint, "doip.primary-endpoint", o.PrimaryEndpoint, "ZGW endpoint used for VCI and readiness collection.")
	fs.StringSliceVar(&o.Routes, "doip.routes", o.Routes, "Zone routing entries in the form 'low-high=host:port'.")
}
