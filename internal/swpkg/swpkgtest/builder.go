// Package swpkgtest builds wire-format campaign packages for tests.
package swpkgtest

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
)

// ECUSpec describes one ECU block to generate.
type ECUSpec struct {
	ID            string
	Version       uint32
	VersionString string
	Firmware      []byte
	Priority      uint8
	Dependencies  []swpkg.ECUDependency
}

// ZoneSpec describes one zone container to generate.
type ZoneSpec struct {
	ID     string
	Name   string
	Number uint8
	ECUs   []ECUSpec
}

// PackageSpec describes a whole campaign package to generate.
type PackageSpec struct {
	VIN           string
	Model         string
	ModelYear     uint16
	Region        uint8
	MasterVersion uint32
	MasterName    string
	Zones         []ZoneSpec
}

// ECUBlock serializes one ECU metadata block followed by its firmware.
func ECUBlock(spec ECUSpec) []byte {
	block := make([]byte, swpkg.ECUMetadataSize, swpkg.ECUMetadataSize+len(spec.Firmware))

	binary.LittleEndian.PutUint32(block[0:4], swpkg.ECUMagic)
	copy(block[4:20], spec.ID)
	binary.LittleEndian.PutUint32(block[20:24], spec.Version)
	binary.LittleEndian.PutUint32(block[24:28], 1) // hw version
	binary.LittleEndian.PutUint32(block[28:32], uint32(len(spec.Firmware)))
	binary.LittleEndian.PutUint32(block[32:36], crc32.ChecksumIEEE(spec.Firmware))
	binary.LittleEndian.PutUint32(block[36:40], 1700000000) // build timestamp
	copy(block[40:72], spec.VersionString)

	block[72] = byte(len(spec.Dependencies))
	for i, d := range spec.Dependencies {
		off := 76 + i*32
		copy(block[off:off+16], d.ECUID)
		binary.LittleEndian.PutUint32(block[off+16:off+20], d.MinVersion)
	}

	return append(block, spec.Firmware...)
}

// ZoneContainer serializes one zone container: header, ECU table, blocks.
func ZoneContainer(spec ZoneSpec) []byte {
	header := make([]byte, swpkg.ZoneHeaderSize)

	binary.LittleEndian.PutUint32(header[0:4], swpkg.ZoneMagic)
	binary.LittleEndian.PutUint32(header[4:8], swpkg.FormatVersion)
	copy(header[12:28], spec.ID)
	header[28] = spec.Number
	header[29] = byte(len(spec.ECUs))
	binary.LittleEndian.PutUint32(header[36:40], 1700000000)
	copy(header[40:72], spec.Name)

	var payload []byte
	offset := uint32(swpkg.ZoneHeaderSize)
	for i, e := range spec.ECUs {
		block := ECUBlock(e)
		entry := header[256+i*64:]

		copy(entry[0:16], e.ID)
		binary.LittleEndian.PutUint32(entry[16:20], offset)
		binary.LittleEndian.PutUint32(entry[20:24], uint32(len(block)))
		binary.LittleEndian.PutUint32(entry[24:28], swpkg.ECUMetadataSize)
		binary.LittleEndian.PutUint32(entry[28:32], uint32(len(e.Firmware)))
		binary.LittleEndian.PutUint32(entry[32:36], e.Version)
		binary.LittleEndian.PutUint32(entry[36:40], crc32.ChecksumIEEE(e.Firmware))
		entry[40] = e.Priority

		payload = append(payload, block...)
		offset += uint32(len(block))
	}

	binary.LittleEndian.PutUint32(header[8:12], uint32(swpkg.ZoneHeaderSize+len(payload)))
	binary.LittleEndian.PutUint32(header[32:36], crc32.ChecksumIEEE(payload))

	return append(header, payload...)
}

// Package serializes a full campaign package: vehicle metadata block
// followed by the zone containers.
func Package(spec PackageSpec) []byte {
	meta := make([]byte, swpkg.VehicleMetadataSize)

	binary.LittleEndian.PutUint32(meta[0:4], swpkg.VehicleMagic)
	binary.LittleEndian.PutUint32(meta[4:8], swpkg.FormatVersion)
	copy(meta[12:29], spec.VIN)
	copy(meta[29:61], spec.Model)
	binary.LittleEndian.PutUint16(meta[61:63], spec.ModelYear)
	meta[63] = spec.Region
	binary.LittleEndian.PutUint32(meta[76:80], spec.MasterVersion)
	copy(meta[80:112], spec.MasterName)
	meta[128] = byte(len(spec.Zones))

	var payload []byte
	ecuIndex := 0
	offset := uint32(swpkg.VehicleMetadataSize)
	for i, z := range spec.Zones {
		container := ZoneContainer(z)
		ref := meta[192+i*32:]

		copy(ref[0:16], z.ID)
		binary.LittleEndian.PutUint32(ref[16:20], offset)
		binary.LittleEndian.PutUint32(ref[20:24], uint32(len(container)))
		ref[24] = z.Number
		ref[25] = byte(len(z.ECUs))

		for _, e := range z.ECUs {
			er := meta[704+ecuIndex*32:]
			copy(er[0:16], e.ID)
			er[16] = z.Number
			binary.LittleEndian.PutUint32(er[17:21], e.Version)
			ecuIndex++
		}

		payload = append(payload, container...)
		offset += uint32(len(container))
	}
	meta[129] = byte(ecuIndex)

	binary.LittleEndian.PutUint32(meta[8:12], uint32(swpkg.VehicleMetadataSize+len(payload)))
	binary.LittleEndian.PutUint32(meta[144:148], crc32.ChecksumIEEE(payload))

	// Metadata CRC is computed with both CRC fields zeroed.
	tmp := make([]byte, swpkg.VehicleMetadataSize)
	copy(tmp, meta)
	for i := 144; i < 152; i++ {
		tmp[i] = 0
	}
	binary.LittleEndian.PutUint32(meta[148:152], crc32.ChecksumIEEE(tmp))

	return append(meta, payload...)
}
