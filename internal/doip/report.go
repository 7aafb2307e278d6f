package doip

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Record sizes of the OEM collection report frames.
const (
	vciRecordSize       = 48
	readinessRecordSize = 27
)

// VCIRecord is one ECU's configuration as reported by the ZGW.
type VCIRecord struct {
	ECUID        string
	SWVersion    string
	HWVersion    string
	SerialNumber string
}

// ReadinessRecord is one ECU's OTA readiness snapshot.
type ReadinessRecord struct {
	ECUID             string
	VehicleParked     bool
	EngineOff         bool
	BatteryMilliVolts uint16
	AvailableMemoryKB uint32
	AllDoorsClosed    bool
	SWCompatible      bool
	ReadyForUpdate    bool
}

// CollectVCI runs the VCI collection routine pair and parses the report
// frame that follows.
func (c *Client) CollectVCI() ([]VCIRecord, error) {
	payload, err := c.collectReport(RIDVCICollect, RIDVCIReport, TypeVCIReport)
	if err != nil {
		return nil, err
	}

	records, err := splitRecords(payload, vciRecordSize)
	if err != nil {
		return nil, fmt.Errorf("doip: vci report: %w", err)
	}

	out := make([]VCIRecord, 0, len(records))
	for _, r := range records {
		out = append(out, VCIRecord{
			ECUID:        cstr(r[0:16]),
			SWVersion:    cstr(r[16:24]),
			HWVersion:    cstr(r[24:32]),
			SerialNumber: cstr(r[32:48]),
		})
	}
	return out, nil
}

// CollectReadiness runs the readiness routine pair and parses the report.
func (c *Client) CollectReadiness() ([]ReadinessRecord, error) {
	payload, err := c.collectReport(RIDReadinessCheck, RIDReadinessReport, TypeReadinessReport)
	if err != nil {
		return nil, err
	}

	records, err := splitRecords(payload, readinessRecordSize)
	if err != nil {
		return nil, fmt.Errorf("doip: readiness report: %w", err)
	}

	out := make([]ReadinessRecord, 0, len(records))
	for _, r := range records {
		out = append(out, ReadinessRecord{
			ECUID:             cstr(r[0:16]),
			VehicleParked:     r[16] != 0,
			EngineOff:         r[17] != 0,
			BatteryMilliVolts: binary.BigEndian.Uint16(r[18:20]),
			AvailableMemoryKB: binary.BigEndian.Uint32(r[20:24]),
			AllDoorsClosed:    r[24] != 0,
			SWCompatible:      r[25] != 0,
			ReadyForUpdate:    r[26] != 0,
		})
	}
	return out, nil
}

// collectReport triggers collection with startRID, requests the report
// with reportRID, then waits for the out-of-band report frame.
func (c *Client) collectReport(startRID, reportRID uint16, reportType uint16) ([]byte, error) {
	if err := c.StartRoutine(startRID, nil); err != nil {
		return nil, fmt.Errorf("doip: start collection routine: %w", err)
	}

	if err := c.StartRoutine(reportRID, nil); err != nil {
		return nil, fmt.Errorf("doip: request report routine: %w", err)
	}

	msg, err := c.receive(c.cfg.DiagTimeout, reportType)
	if err != nil {
		return nil, fmt.Errorf("doip: wait report frame 0x%04X: %w", reportType, err)
	}

	return msg.Payload, nil
}

// splitRecords parses a "count u8 + N fixed records" payload.
func splitRecords(payload []byte, recordSize int) ([][]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("empty payload")
	}

	count := int(payload[0])
	body := payload[1:]
	if len(body) != count*recordSize {
		return nil, fmt.Errorf("payload carries %d bytes, need exactly %d for %d records",
			len(body), count*recordSize, count)
	}

	records := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, body[i*recordSize:(i+1)*recordSize])
	}
	return records, nil
}

// cstr interprets a fixed-size field as a NUL-terminated string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
