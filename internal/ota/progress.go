package ota

import "context"

// Progress is the report published to the backend while a campaign
// runs.
type Progress struct {
	CampaignID      string `json:"campaign_id"`
	State           string `json:"state"`
	Percentage      int    `json:"percentage"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      int64  `json:"total_bytes"`
	CurrentStep     string `json:"current_step"`
	Zone            uint8  `json:"zone,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ProgressPublisher delivers progress reports, typically onto the
// vehicle's MQTT progress topic.
type ProgressPublisher func(ctx context.Context, p Progress) error
