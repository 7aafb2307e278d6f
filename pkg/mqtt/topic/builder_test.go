package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderTopics(t *testing.T) {
	b := NewBuilder("oem")
	vin := "KMHL14JA5PA123456"

	assert.Equal(t, "oem/KMHL14JA5PA123456/command", b.Command(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/ota/campaign", b.Campaign(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/ota/metadata", b.Metadata(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/ota/progress", b.Progress(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/heartbeat", b.Heartbeat(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/vci", b.VCI(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/readiness", b.Readiness(vin))
	assert.Equal(t, "oem/KMHL14JA5PA123456/custom", b.Build(vin, "custom"))
}
