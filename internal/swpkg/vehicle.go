// Package swpkg parses the three-layer software package format: a
// vehicle metadata block, zone containers and per-ECU blocks. The
// format is produced off-board; every multi-byte field is little-endian.
package swpkg

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Vehicle metadata block layout.
const (
	VehicleMetadataSize = 12288
	VehicleMagic        = 0x5650504B
	FormatVersion       = 0x00010000

	MaxZones = 16
	MaxECUs  = 256

	zoneRefSize    = 32
	zoneRefsOffset = 192
	ecuRefSize     = 32
	ecuRefsOffset  = 704

	vehicleCRCOffset  = 144
	metadataCRCOffset = 148
)

// ZoneRef is one entry of the zone directory. Offset is relative to the
// start of the whole package file.
type ZoneRef struct {
	ZoneID     string
	Offset     uint32
	Size       uint32
	ZoneNumber uint8
	ECUCount   uint8
}

// ECURef is one entry of the flat ECU quick-reference table.
type ECURef struct {
	ECUID           string
	ZoneNumber      uint8
	FirmwareVersion uint32
}

// VehicleMetadata is the parsed 12 KiB header of a campaign package.
type VehicleMetadata struct {
	Version   uint32
	TotalSize uint32

	VIN            string
	Model          string
	ModelYear      uint16
	Region         uint8
	MasterVersion  uint32
	MasterVerName  string
	ZoneCount      uint8
	TotalECUCount  uint8
	PayloadCRC32   uint32
	MetadataCRC32  uint32

	Zones []ZoneRef
	ECUs  []ECURef
}

// ParseVehicleMetadata parses and validates the vehicle metadata block
// at the start of data.
func ParseVehicleMetadata(data []byte) (*VehicleMetadata, error) {
	if len(data) < VehicleMetadataSize {
		return nil, fmt.Errorf("swpkg: vehicle metadata needs %d bytes, have %d", VehicleMetadataSize, len(data))
	}
	block := data[:VehicleMetadataSize]

	if magic := binary.LittleEndian.Uint32(block[0:4]); magic != VehicleMagic {
		return nil, fmt.Errorf("swpkg: bad vehicle magic 0x%08X", magic)
	}

	m := &VehicleMetadata{
		Version:       binary.LittleEndian.Uint32(block[4:8]),
		TotalSize:     binary.LittleEndian.Uint32(block[8:12]),
		VIN:           cstr(block[12:29]),
		Model:         cstr(block[29:61]),
		ModelYear:     binary.LittleEndian.Uint16(block[61:63]),
		Region:        block[63],
		MasterVersion: binary.LittleEndian.Uint32(block[76:80]),
		MasterVerName: cstr(block[80:112]),
		ZoneCount:     block[128],
		TotalECUCount: block[129],
		PayloadCRC32:  binary.LittleEndian.Uint32(block[vehicleCRCOffset : vehicleCRCOffset+4]),
		MetadataCRC32: binary.LittleEndian.Uint32(block[metadataCRCOffset : metadataCRCOffset+4]),
	}

	if m.Version != FormatVersion {
		return nil, fmt.Errorf("swpkg: unsupported format version 0x%08X", m.Version)
	}
	if m.ZoneCount > MaxZones {
		return nil, fmt.Errorf("swpkg: zone count %d exceeds %d", m.ZoneCount, MaxZones)
	}

	// Legacy producers leave the metadata CRC zero; only verify when set.
	if m.MetadataCRC32 != 0 {
		if sum := metadataChecksum(block); sum != m.MetadataCRC32 {
			return nil, fmt.Errorf("swpkg: metadata crc mismatch: stored 0x%08X, computed 0x%08X", m.MetadataCRC32, sum)
		}
	}

	for i := 0; i < int(m.ZoneCount); i++ {
		ref := block[zoneRefsOffset+i*zoneRefSize:]
		m.Zones = append(m.Zones, ZoneRef{
			ZoneID:     cstr(ref[0:16]),
			Offset:     binary.LittleEndian.Uint32(ref[16:20]),
			Size:       binary.LittleEndian.Uint32(ref[20:24]),
			ZoneNumber: ref[24],
			ECUCount:   ref[25],
		})
	}

	for i := 0; i < int(m.TotalECUCount); i++ {
		ref := block[ecuRefsOffset+i*ecuRefSize:]
		m.ECUs = append(m.ECUs, ECURef{
			ECUID:           cstr(ref[0:16]),
			ZoneNumber:      ref[16],
			FirmwareVersion: binary.LittleEndian.Uint32(ref[17:21]),
		})
	}

	return m, nil
}

// VerifyPayload checks the whole-package CRC, computed over the
// declared payload range. Bytes past TotalSize are not part of the
// package and never disturb the checksum.
func (m *VehicleMetadata) VerifyPayload(pkg []byte) error {
	if m.TotalSize < VehicleMetadataSize || uint64(m.TotalSize) > uint64(len(pkg)) {
		return fmt.Errorf("swpkg: declared size %d not within [%d,%d]", m.TotalSize, VehicleMetadataSize, len(pkg))
	}
	sum := crc32.ChecksumIEEE(pkg[VehicleMetadataSize:m.TotalSize])
	if sum != m.PayloadCRC32 {
		return fmt.Errorf("swpkg: payload crc mismatch: stored 0x%08X, computed 0x%08X", m.PayloadCRC32, sum)
	}
	return nil
}

// VerifyTarget checks the package against this vehicle's identity.
// VIN, model and model year must all match.
func (m *VehicleMetadata) VerifyTarget(vin, model string, year uint16) error {
	if m.VIN != vin {
		return fmt.Errorf("swpkg: package targets VIN %q, this vehicle is %q", m.VIN, vin)
	}
	if m.Model != model {
		return fmt.Errorf("swpkg: package targets model %q, this vehicle is %q", m.Model, model)
	}
	if m.ModelYear != year {
		return fmt.Errorf("swpkg: package targets model year %d, this vehicle is %d", m.ModelYear, year)
	}
	return nil
}

// ZoneByNumber returns the directory entry for the given zone number.
func (m *VehicleMetadata) ZoneByNumber(n uint8) (ZoneRef, bool) {
	for _, z := range m.Zones {
		if z.ZoneNumber == n {
			return z, true
		}
	}
	return ZoneRef{}, false
}

// ExtractZone returns the byte-exact zone container described by ref.
// The range must fall inside the declared package size.
func (m *VehicleMetadata) ExtractZone(pkg []byte, ref ZoneRef) ([]byte, error) {
	end := uint64(ref.Offset) + uint64(ref.Size)
	if ref.Offset < VehicleMetadataSize || end > uint64(m.TotalSize) || end > uint64(len(pkg)) {
		return nil, fmt.Errorf("swpkg: zone %d range [%d,%d) outside package of %d bytes",
			ref.ZoneNumber, ref.Offset, end, len(pkg))
	}
	out := make([]byte, ref.Size)
	copy(out, pkg[ref.Offset:end])
	return out, nil
}

// metadataChecksum computes the CRC of the metadata block with both CRC
// fields zeroed.
func metadataChecksum(block []byte) uint32 {
	tmp := make([]byte, VehicleMetadataSize)
	copy(tmp, block[:VehicleMetadataSize])
	for i := vehicleCRCOffset; i < metadataCRCOffset+4; i++ {
		tmp[i] = 0
	}
	return crc32.ChecksumIEEE(tmp)
}
