package swpkg

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Zone container layout.
const (
	ZoneHeaderSize = 1024
	ZoneMagic      = 0x5A4F4E45

	MaxZoneECUs = 16

	zoneECUEntrySize   = 64
	zoneECUTableOffset = 256
)

// ZoneECUEntry describes one ECU block inside a zone container. Offset
// is relative to the start of the container.
type ZoneECUEntry struct {
	ECUID           string
	Offset          uint32
	Size            uint32
	MetadataSize    uint32
	FirmwareSize    uint32
	FirmwareVersion uint32
	CRC32           uint32
	Priority        uint8
}

// ZoneHeader is the parsed 1 KiB header of a zone container.
type ZoneHeader struct {
	Version      uint32
	TotalSize    uint32
	ZoneID       string
	ZoneNumber   uint8
	PackageCount uint8
	PayloadCRC32 uint32
	Timestamp    uint32
	ZoneName     string

	ECUs []ZoneECUEntry
}

// ParseZoneHeader parses and validates the zone header at the start of data.
func ParseZoneHeader(data []byte) (*ZoneHeader, error) {
	if len(data) < ZoneHeaderSize {
		return nil, fmt.Errorf("swpkg: zone header needs %d bytes, have %d", ZoneHeaderSize, len(data))
	}
	block := data[:ZoneHeaderSize]

	if magic := binary.LittleEndian.Uint32(block[0:4]); magic != ZoneMagic {
		return nil, fmt.Errorf("swpkg: bad zone magic 0x%08X", magic)
	}

	h := &ZoneHeader{
		Version:      binary.LittleEndian.Uint32(block[4:8]),
		TotalSize:    binary.LittleEndian.Uint32(block[8:12]),
		ZoneID:       cstr(block[12:28]),
		ZoneNumber:   block[28],
		PackageCount: block[29],
		PayloadCRC32: binary.LittleEndian.Uint32(block[32:36]),
		Timestamp:    binary.LittleEndian.Uint32(block[36:40]),
		ZoneName:     cstr(block[40:72]),
	}

	if h.PackageCount > MaxZoneECUs {
		return nil, fmt.Errorf("swpkg: zone package count %d exceeds %d", h.PackageCount, MaxZoneECUs)
	}

	for i := 0; i < int(h.PackageCount); i++ {
		e := block[zoneECUTableOffset+i*zoneECUEntrySize:]
		h.ECUs = append(h.ECUs, ZoneECUEntry{
			ECUID:           cstr(e[0:16]),
			Offset:          binary.LittleEndian.Uint32(e[16:20]),
			Size:            binary.LittleEndian.Uint32(e[20:24]),
			MetadataSize:    binary.LittleEndian.Uint32(e[24:28]),
			FirmwareSize:    binary.LittleEndian.Uint32(e[28:32]),
			FirmwareVersion: binary.LittleEndian.Uint32(e[32:36]),
			CRC32:           binary.LittleEndian.Uint32(e[36:40]),
			Priority:        e[40],
		})
	}

	return h, nil
}

// VerifyPayload checks the zone CRC, computed over the declared
// payload range. Bytes past TotalSize never disturb the checksum.
func (h *ZoneHeader) VerifyPayload(container []byte) error {
	if h.TotalSize < ZoneHeaderSize || uint64(h.TotalSize) > uint64(len(container)) {
		return fmt.Errorf("swpkg: declared zone size %d not within [%d,%d]", h.TotalSize, ZoneHeaderSize, len(container))
	}
	sum := crc32.ChecksumIEEE(container[ZoneHeaderSize:h.TotalSize])
	if sum != h.PayloadCRC32 {
		return fmt.Errorf("swpkg: zone %d crc mismatch: stored 0x%08X, computed 0x%08X",
			h.ZoneNumber, h.PayloadCRC32, sum)
	}
	return nil
}

// ExtractECU slices the metadata block and firmware image of entry e
// out of the zone container.
func ExtractECU(container []byte, e ZoneECUEntry) (metadata, firmware []byte, err error) {
	end := uint64(e.Offset) + uint64(e.Size)
	if e.Offset < ZoneHeaderSize || end > uint64(len(container)) {
		return nil, nil, fmt.Errorf("swpkg: ecu %q range [%d,%d) outside container of %d bytes",
			e.ECUID, e.Offset, end, len(container))
	}
	if uint64(e.MetadataSize)+uint64(e.FirmwareSize) > uint64(e.Size) {
		return nil, nil, fmt.Errorf("swpkg: ecu %q metadata+firmware exceed entry size", e.ECUID)
	}

	block := container[e.Offset:end]
	return block[:e.MetadataSize], block[e.MetadataSize : e.MetadataSize+e.FirmwareSize], nil
}
