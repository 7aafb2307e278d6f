package ota

import (
	"encoding/json"
	"fmt"
)

// Campaign types. A vehicle campaign carries a full software package
// distributed to zonal gateways; a self campaign carries a firmware
// image for the gateway's own inactive slot.
const (
	CampaignTypeVehicle = "vehicle"
	CampaignTypeSelf    = "self"
)

// Campaign is the update order pushed by the backend.
type Campaign struct {
	CampaignID string `json:"campaign_id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
	Version    string `json:"version"`

	TargetVIN   string `json:"target_vin,omitempty"`
	TargetModel string `json:"target_model,omitempty"`
}

// ParseCampaign decodes and sanity-checks a campaign message.
func ParseCampaign(data []byte) (*Campaign, error) {
	var c Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("ota: decode campaign: %w", err)
	}
	if c.Type == "" {
		c.Type = CampaignTypeVehicle
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Campaign) validate() error {
	if c.CampaignID == "" {
		return fmt.Errorf("ota: campaign has no campaign_id")
	}
	if c.URL == "" {
		return fmt.Errorf("ota: campaign %s has no url", c.CampaignID)
	}
	if c.Type != CampaignTypeVehicle && c.Type != CampaignTypeSelf {
		return fmt.Errorf("ota: campaign %s has unknown type %q", c.CampaignID, c.Type)
	}
	return nil
}

// VersionNumber packs a "major.minor.patch" version string into the
// u32 layout used by the partition records. Unparseable strings map
// to zero.
func (c *Campaign) VersionNumber() uint32 {
	var major, minor, patch uint32
	if _, err := fmt.Sscanf(c.Version, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return 0
	}
	return major<<24 | minor<<16 | patch
}
