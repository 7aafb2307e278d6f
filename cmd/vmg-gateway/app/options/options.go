package options

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/options"
)

// vinFile is consulted when neither the flag nor VMG_VIN is set.
const vinFile = "/etc/vmg/vin"

// GatewayOptions aggregates every component's options.
type GatewayOptions struct {
	Mqtt      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	Http      *options.HttpOptions      `json:"http" mapstructure:"http"`
	Doip      *options.DoipOptions      `json:"doip" mapstructure:"doip"`
	Ota       *options.OtaOptions       `json:"ota" mapstructure:"ota"`
	Partition *options.PartitionOptions `json:"partition" mapstructure:"partition"`
	Vehicle   *options.VehicleOptions   `json:"vehicle" mapstructure:"vehicle"`
	Cloud     *options.CloudOptions     `json:"cloud" mapstructure:"cloud"`
	Readiness *options.ReadinessOptions `json:"readiness" mapstructure:"readiness"`
	Log       *log.Options              `json:"log" mapstructure:"log"`
}

// NewGatewayOptions builds the options set with defaults applied.
func NewGatewayOptions() *GatewayOptions {
	return &GatewayOptions{
		Mqtt:      options.NewMqttOptions(),
		Http:      options.NewHttpOptions(),
		Doip:      options.NewDoipOptions(),
		Ota:       options.NewOtaOptions(),
		Partition: options.NewPartitionOptions(),
		Vehicle:   options.NewVehicleOptions(),
		Cloud:     options.NewCloudOptions(),
		Readiness: options.NewReadinessOptions(),
		Log:       log.NewOptions(),
	}
}

// AddFlags registers every component's flags.
func (o *GatewayOptions) AddFlags(fs *pflag.FlagSet) {
	o.Mqtt.AddFlags(fs)
	o.Http.AddFlags(fs)
	o.Doip.AddFlags(fs)
	o.Ota.AddFlags(fs)
	o.Partition.AddFlags(fs)
	o.Vehicle.AddFlags(fs)
	o.Cloud.AddFlags(fs)
	o.Readiness.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Complete fills in derived values: the VIN from the environment or
// the provisioning file when no flag was given, and an MQTT client id
// derived from the VIN.
func (o *GatewayOptions) Complete() error {
	if o.Vehicle.VIN == "" {
		o.Vehicle.VIN = discoverVIN()
	}
	if o.Vehicle.VIN == "" {
		return fmt.Errorf("no VIN configured: set --vehicle.vin, VMG_VIN or %s", vinFile)
	}
	if o.Mqtt.ClientID == "" {
		o.Mqtt.ClientID = "vmg-" + o.Vehicle.VIN
	}
	return nil
}

// Validate aggregates every component's validation errors.
func (o *GatewayOptions) Validate() error {
	var result *multierror.Error

	for _, errs := range [][]error{
		o.Mqtt.Validate(),
		o.Http.Validate(),
		o.Doip.Validate(),
		o.Ota.Validate(),
		o.Partition.Validate(),
		o.Vehicle.Validate(),
		o.Cloud.Validate(),
		o.Readiness.Validate(),
		o.Log.Validate(),
	} {
		result = multierror.Append(result, errs...)
	}

	return result.ErrorOrNil()
}

func discoverVIN() string {
	if vin := strings.TrimSpace(os.Getenv("VMG_VIN")); vin != "" {
		return vin
	}
	if data, err := os.ReadFile(vinFile); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}
