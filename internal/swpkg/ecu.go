package swpkg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ECU metadata block layout.
const (
	ECUMetadataSize = 256
	ECUMagic        = 0x4543554D

	// MaxECUDependencies bounds the dependency list so it fits the fixed
	// 256-byte block.
	MaxECUDependencies = 4

	ecuDepSize    = 32
	ecuDepsOffset = 76
)

// ECUDependency is a required minimum version of another ECU.
type ECUDependency struct {
	ECUID      string
	MinVersion uint32
}

// ECUMetadata is the parsed fixed-size header preceding an ECU firmware
// image.
type ECUMetadata struct {
	ECUID          string
	SWVersion      uint32
	HWVersion      uint32
	FirmwareSize   uint32
	FirmwareCRC32  uint32
	BuildTimestamp uint32
	VersionString  string

	Dependencies []ECUDependency
}

// ParseECUMetadata parses and validates an ECU metadata block.
func ParseECUMetadata(data []byte) (*ECUMetadata, error) {
	if len(data) < ECUMetadataSize {
		return nil, fmt.Errorf("swpkg: ecu metadata needs %d bytes, have %d", ECUMetadataSize, len(data))
	}
	block := data[:ECUMetadataSize]

	if magic := binary.LittleEndian.Uint32(block[0:4]); magic != ECUMagic {
		return nil, fmt.Errorf("swpkg: bad ecu magic 0x%08X", magic)
	}

	m := &ECUMetadata{
		ECUID:          cstr(block[4:20]),
		SWVersion:      binary.LittleEndian.Uint32(block[20:24]),
		HWVersion:      binary.LittleEndian.Uint32(block[24:28]),
		FirmwareSize:   binary.LittleEndian.Uint32(block[28:32]),
		FirmwareCRC32:  binary.LittleEndian.Uint32(block[32:36]),
		BuildTimestamp: binary.LittleEndian.Uint32(block[36:40]),
		VersionString:  cstr(block[40:72]),
	}

	depCount := int(block[72])
	if depCount > MaxECUDependencies {
		return nil, fmt.Errorf("swpkg: ecu %q declares %d dependencies, limit is %d",
			m.ECUID, depCount, MaxECUDependencies)
	}

	for i := 0; i < depCount; i++ {
		d := block[ecuDepsOffset+i*ecuDepSize:]
		m.Dependencies = append(m.Dependencies, ECUDependency{
			ECUID:      cstr(d[0:16]),
			MinVersion: binary.LittleEndian.Uint32(d[16:20]),
		})
	}

	return m, nil
}

// VerifyFirmware checks the firmware image against the size and CRC
// recorded in the metadata.
func (m *ECUMetadata) VerifyFirmware(fw []byte) error {
	if uint32(len(fw)) != m.FirmwareSize {
		return fmt.Errorf("swpkg: ecu %q firmware is %d bytes, metadata says %d",
			m.ECUID, len(fw), m.FirmwareSize)
	}
	if sum := crc32.ChecksumIEEE(fw); sum != m.FirmwareCRC32 {
		return fmt.Errorf("swpkg: ecu %q firmware crc mismatch: stored 0x%08X, computed 0x%08X",
			m.ECUID, m.FirmwareCRC32, sum)
	}
	return nil
}

// cstr interprets a fixed-size field as a NUL-terminated string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
