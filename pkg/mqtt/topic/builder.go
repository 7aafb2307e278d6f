package topic

import (
	"fmt"
)

// Constants defining the standard topic segments.
// These act as the protocol contract between the OEM backend and the
// in-vehicle gateway. Changing these values breaks deployed vehicles.
const (
	// SuffixCommand is the downstream command topic (Cloud -> Vehicle).
	// Structure: {root}/{vin}/command
	SuffixCommand = "command"

	// SuffixCampaign carries OTA campaign announcements (Cloud -> Vehicle).
	// Structure: {root}/{vin}/ota/campaign
	SuffixCampaign = "ota/campaign"

	// SuffixMetadata carries pushed package metadata (Cloud -> Vehicle).
	// Structure: {root}/{vin}/ota/metadata
	SuffixMetadata = "ota/metadata"

	// SuffixProgress is the upstream OTA progress topic (Vehicle -> Cloud).
	// Structure: {root}/{vin}/ota/progress
	SuffixProgress = "ota/progress"

	// SuffixHeartbeat is the upstream liveness topic (Vehicle -> Cloud).
	// Structure: {root}/{vin}/heartbeat
	SuffixHeartbeat = "heartbeat"

	// SuffixVCI is the upstream vehicle configuration topic (Vehicle -> Cloud).
	// Structure: {root}/{vin}/vci
	SuffixVCI = "vci"

	// SuffixReadiness is the upstream OTA readiness topic (Vehicle -> Cloud).
	// Structure: {root}/{vin}/readiness
	SuffixReadiness = "readiness"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
// It keeps the topic topology in one place instead of scattering
// fmt.Sprintf calls across the codebase.
type Builder struct {
	// root is the base namespace for all topics (e.g., "oem").
	root string
}

// NewBuilder creates a Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: root}
}

// Command returns the topic the backend uses to send commands to a vehicle.
func (b *Builder) Command(vin string) string {
	return b.build(vin, SuffixCommand)
}

// Campaign returns the topic carrying OTA campaign announcements.
func (b *Builder) Campaign(vin string) string {
	return b.build(vin, SuffixCampaign)
}

// Metadata returns the topic carrying pushed package metadata.
func (b *Builder) Metadata(vin string) string {
	return b.build(vin, SuffixMetadata)
}

// Progress returns the topic a vehicle publishes OTA progress to.
func (b *Builder) Progress(vin string) string {
	return b.build(vin, SuffixProgress)
}

// Heartbeat returns the topic a vehicle publishes liveness to.
func (b *Builder) Heartbeat(vin string) string {
	return b.build(vin, SuffixHeartbeat)
}

// VCI returns the topic a vehicle publishes configuration reports to.
func (b *Builder) VCI(vin string) string {
	return b.build(vin, SuffixVCI)
}

// Readiness returns the topic a vehicle publishes readiness reports to.
func (b *Builder) Readiness(vin string) string {
	return b.build(vin, SuffixReadiness)
}

// Build constructs a topic for an arbitrary suffix.
// Pattern: {root}/{vin}/{suffix}
func (b *Builder) Build(vin, suffix string) string {
	return b.build(vin, suffix)
}

func (b *Builder) build(vin, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, vin, suffix)
}
