package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*CloudOptions)(nil)

// CloudOptions contains configuration for the OEM backend HTTP API.
type CloudOptions struct {
	// BaseURL of the OTA server, e.g. "https://ota.example.com".
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Timeout for individual HTTP requests.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewCloudOptions creates a CloudOptions object with default parameters.
func NewCloudOptions() *CloudOptions {
	return &CloudOptions{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *CloudOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Errorf("invalid cloud base url %q", o.BaseURL))
	}

	return errors
}

// AddFlags adds flags for CloudOptions to the specified FlagSet.
func (o *CloudOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.BaseURL, "cloud.base-url", o.BaseURL, "Base URL of the OTA server HTTP API.")
	fs.DurationVar(&o.Timeout, "cloud.timeout", o.Timeout, "Timeout for OTA server HTTP requests.")
	fs.BoolVar(&o.InsecureSkipVerify, "cloud.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
}
