package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"oem/VIN1/command", "oem/VIN1/command", true},
		{"oem/+/command", "oem/VIN1/command", true},
		{"oem/+/command", "oem/VIN1/heartbeat", false},
		{"oem/#", "oem/VIN1/ota/progress", true},
		{"oem/+/ota/#", "oem/VIN1/ota/campaign", true},
		{"oem/+/ota/#", "oem/VIN1/command", false},
		{"oem/+", "oem/VIN1/command", false},
		{"oem/VIN1/command", "oem/VIN1", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" vs "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic))
		})
	}
}

func TestTopicFilterSharedSubscription(t *testing.T) {
	assert.Equal(t, "oem/+/command", topicFilter("$share/gw/oem/+/command"))
	assert.Equal(t, "oem/+/command", topicFilter("oem/+/command"))
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{}
	assert.Error(t, cfg.Validate())

	cfg.BrokerURL = "tcp://broker.local:1883"
	assert.NoError(t, cfg.Validate())
}
