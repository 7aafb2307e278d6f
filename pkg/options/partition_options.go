package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PartitionOptions)(nil)

// PartitionOptions contains configuration for the A/B partition manager.
type PartitionOptions struct {
	// DataDir holds the partition metadata and boot status records.
	DataDir string `json:"data-dir" mapstructure:"data-dir"`

	// SlotA and SlotB are the firmware image paths of the two slots.
	SlotA string `json:"slot-a" mapstructure:"slot-a"`
	SlotB string `json:"slot-b" mapstructure:"slot-b"`

	// MaxBootAttempts is how many unconfirmed boots are tolerated before
	// the boot manager rolls back to the previous slot.
	MaxBootAttempts uint32 `json:"max-boot-attempts" mapstructure:"max-boot-attempts"`
}

// NewPartitionOptions creates a PartitionOptions object with default parameters.
func NewPartitionOptions() *PartitionOptions {
	return &PartitionOptions{
		DataDir:         "/var/lib/vmg/partitions",
		SlotA:           "/var/lib/vmg/partitions/slot_a.img",
		SlotB:           "/var/lib/vmg/partitions/slot_b.img",
		MaxBootAttempts: 3,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *PartitionOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.MaxBootAttempts < 1 {
		errors = append(errors, fmt.Errorf("max boot attempts must be at least 1, got %d", o.MaxBootAttempts))
	}
	if o.SlotA == o.SlotB {
		errors = append(errors, fmt.Errorf("slot A and slot B must be different paths"))
	}

	return errors
}

// AddFlags adds flags for PartitionOptions to the specified FlagSet.
func (o *PartitionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.DataDir, "partition.data-dir", o.DataDir, "Directory holding partition metadata and boot status.")
	fs.StringVar(&o.SlotA, "partition.slot-a", o.SlotA, "Path of the slot A firmware image.")
	fs.StringVar(&o.SlotB, "partition.slot-b", o.SlotB, "Path of the slot B firmware image.")
	fs.Uint32Var(&o.MaxBootAttempts, "partition.max-boot-attempts", o.MaxBootAttempts, "Unconfirmed boots tolerated before rollback.")
}
