package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*OtaOptions)(nil)

// OtaOptions contains configuration for package download and installation.
type OtaOptions struct {
	// DownloadDir is where campaign packages are staged.
	DownloadDir string `json:"download-dir" mapstructure:"download-dir"`

	// ChunkSize is the ranged-request size for package downloads, in bytes.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// MaxRetries is the number of attempts per download chunk.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// RetryDelay is the pause between chunk retry attempts.
	RetryDelay time.Duration `json:"retry-delay" mapstructure:"retry-delay"`

	// ProgressStep is the percentage granularity of progress reports.
	ProgressStep int `json:"progress-step" mapstructure:"progress-step"`
}

// NewOtaOptions creates an OtaOptions object with default parameters.
func NewOtaOptions() *OtaOptions {
	return &OtaOptions{
		DownloadDir:  "/var/lib/vmg/downloads",
		ChunkSize:    64 * 1024,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		ProgressStep: 5,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *OtaOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.ChunkSize <= 0 {
		errors = append(errors, fmt.Errorf("ota chunk size must be positive, got %d", o.ChunkSize))
	}
	if o.MaxRetries < 1 {
		errors = append(errors, fmt.Errorf("ota max retries must be at least 1, got %d", o.MaxRetries))
	}
	if o.ProgressStep < 1 || o.ProgressStep > 100 {
		errors = append(errors, fmt.Errorf("ota progress step must be in [1,100], got %d", o.ProgressStep))
	}

	return errors
}

// AddFlags adds flags for OtaOptions to the specified FlagSet.
func (o *OtaOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DownloadDir, "ota.download-dir", o.DownloadDir, "Directory where campaign packages are staged.")
	fs.IntVar(&o.ChunkSize, "ota.chunk-size", o.ChunkSize, "Ranged download chunk size in bytes.")
	fs.IntVar(&o.MaxRetries, "ota.max-retries", o.MaxRetries, "Attempts per download chunk before the campaign fails.")
	fs.DurationVar(&o.RetryDelay, "ota.retry-delay", o.RetryDelay, "Delay between download retry attempts.")
	fs.IntVar(&o.ProgressStep, "ota.progress-step", o.ProgressStep, "Progress report granularity in percent.")
}
