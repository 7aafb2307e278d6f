// Package vci collects vehicle configuration information from the
// zonal gateway and shapes it for publishing.
package vci

import (
	"context"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// ECUInfo is one ECU's identification as reported over DoIP.
type ECUInfo struct {
	ECUID        string `json:"ecu_id"`
	SWVersion    string `json:"sw_version"`
	HWVersion    string `json:"hw_version"`
	SerialNumber string `json:"serial_number"`
}

// Report is the published VCI document.
type Report struct {
	VIN       string    `json:"vin"`
	Timestamp time.Time `json:"timestamp"`
	ECUCount  int       `json:"ecu_count"`
	ECUs      []ECUInfo `json:"ecus"`
}

// Collector gathers VCI reports from the primary zonal gateway.
type Collector struct {
	vin    string
	doip   doip.Config
	logger log.Logger
}

// NewCollector creates a collector that dials cfg.Endpoint.
func NewCollector(vin string, cfg doip.Config) *Collector {
	return &Collector{
		vin:    vin,
		doip:   cfg,
		logger: log.WithName("vci"),
	}
}

// Collect runs the collection routine pair and returns the report.
func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	client := doip.NewClient(c.doip)
	if err := client.Connect(ctx); err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("vci", "failed").Inc()
		return nil, err
	}
	defer client.Close()

	records, err := client.CollectVCI()
	if err != nil {
		metrics.DoIPRequestsTotal.WithLabelValues("vci", "failed").Inc()
		return nil, err
	}
	metrics.DoIPRequestsTotal.WithLabelValues("vci", "success").Inc()

	report := &Report{
		VIN:       c.vin,
		Timestamp: time.Now().UTC(),
		ECUCount:  len(records),
		ECUs:      make([]ECUInfo, 0, len(records)),
	}
	for _, r := range records {
		report.ECUs = append(report.ECUs, ECUInfo{
			ECUID:        r.ECUID,
			SWVersion:    r.SWVersion,
			HWVersion:    r.HWVersion,
			SerialNumber: r.SerialNumber,
		})
	}

	c.logger.Info("VCI collected", "ecus", len(records))
	return report, nil
}
