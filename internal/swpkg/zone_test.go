package swpkg_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg"
	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/swpkg/swpkgtest"
)

func TestParseZoneHeader(t *testing.T) {
	spec := swpkgtest.ZoneSpec{
		ID: "ZONE_FRONT", Name: "Front Zone", Number: 1,
		ECUs: []swpkgtest.ECUSpec{
			{ID: "ECU_ENGINE_01", Version: 0x00010002, VersionString: "1.0.2", Firmware: bytes.Repeat([]byte{0xA1}, 900)},
			{ID: "ECU_BRAKE_02", Version: 0x00010000, VersionString: "1.0.0", Firmware: bytes.Repeat([]byte{0xB2}, 300), Priority: 2},
		},
	}
	container := swpkgtest.ZoneContainer(spec)

	h, err := swpkg.ParseZoneHeader(container)
	require.NoError(t, err)

	assert.Equal(t, "ZONE_FRONT", h.ZoneID)
	assert.Equal(t, "Front Zone", h.ZoneName)
	assert.Equal(t, uint8(1), h.ZoneNumber)
	assert.Equal(t, uint8(2), h.PackageCount)
	assert.Equal(t, uint32(len(container)), h.TotalSize)
	assert.NoError(t, h.VerifyPayload(container))

	require.Len(t, h.ECUs, 2)
	e := h.ECUs[1]
	assert.Equal(t, "ECU_BRAKE_02", e.ECUID)
	assert.Equal(t, uint32(swpkg.ECUMetadataSize), e.MetadataSize)
	assert.Equal(t, uint32(300), e.FirmwareSize)
	assert.Equal(t, uint8(2), e.Priority)
}

func TestZonePayloadCorruptionDetected(t *testing.T) {
	container := swpkgtest.ZoneContainer(swpkgtest.ZoneSpec{
		ID: "ZONE_REAR", Number: 5,
		ECUs: []swpkgtest.ECUSpec{{ID: "ECU_DOOR_03", Firmware: []byte{1, 2, 3, 4}}},
	})
	h, err := swpkg.ParseZoneHeader(container)
	require.NoError(t, err)

	bad := append([]byte(nil), container...)
	bad[len(bad)-1] ^= 0x80
	assert.Error(t, h.VerifyPayload(bad))

	// Bytes past the declared size do not count as corruption.
	padded := append(append([]byte(nil), container...), make([]byte, 16)...)
	assert.NoError(t, h.VerifyPayload(padded))

	assert.Error(t, h.VerifyPayload(container[:len(container)-1]))
}

func TestExtractECUAndVerifyFirmware(t *testing.T) {
	fw := bytes.Repeat([]byte{0xC3}, 1234)
	container := swpkgtest.ZoneContainer(swpkgtest.ZoneSpec{
		ID: "ZONE_FRONT", Number: 1,
		ECUs: []swpkgtest.ECUSpec{{ID: "ECU_ENGINE_01", Version: 7, VersionString: "0.0.7", Firmware: fw}},
	})

	h, err := swpkg.ParseZoneHeader(container)
	require.NoError(t, err)
	require.Len(t, h.ECUs, 1)

	metaBytes, gotFW, err := swpkg.ExtractECU(container, h.ECUs[0])
	require.NoError(t, err)
	assert.Equal(t, fw, gotFW)

	meta, err := swpkg.ParseECUMetadata(metaBytes)
	require.NoError(t, err)
	assert.Equal(t, "ECU_ENGINE_01", meta.ECUID)
	assert.Equal(t, uint32(7), meta.SWVersion)
	assert.Equal(t, "0.0.7", meta.VersionString)
	assert.Equal(t, uint32(len(fw)), meta.FirmwareSize)

	assert.NoError(t, meta.VerifyFirmware(gotFW))

	corrupted := append([]byte(nil), gotFW...)
	corrupted[0] ^= 0xFF
	assert.Error(t, meta.VerifyFirmware(corrupted))
	assert.Error(t, meta.VerifyFirmware(gotFW[:100]))
}

func TestParseECUMetadataDependencies(t *testing.T) {
	block := swpkgtest.ECUBlock(swpkgtest.ECUSpec{
		ID: "ECU_DOOR_03", Version: 3, Firmware: []byte{9, 9},
		Dependencies: []swpkg.ECUDependency{
			{ECUID: "ECU_ENGINE_01", MinVersion: 0x00010000},
			{ECUID: "ECU_BRAKE_02", MinVersion: 2},
		},
	})

	meta, err := swpkg.ParseECUMetadata(block)
	require.NoError(t, err)
	require.Len(t, meta.Dependencies, 2)
	assert.Equal(t, "ECU_ENGINE_01", meta.Dependencies[0].ECUID)
	assert.Equal(t, uint32(0x00010000), meta.Dependencies[0].MinVersion)
	assert.Equal(t, uint32(2), meta.Dependencies[1].MinVersion)
}

func TestParseZoneHeaderRejectsBadInput(t *testing.T) {
	container := swpkgtest.ZoneContainer(swpkgtest.ZoneSpec{ID: "Z", Number: 1})

	_, err := swpkg.ParseZoneHeader(container[:512])
	assert.Error(t, err)

	bad := append([]byte(nil), container...)
	bad[0] = 0x00
	_, err = swpkg.ParseZoneHeader(bad)
	assert.Error(t, err)
}
