package partition

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(Config{
		DataDir: dir,
		SlotPaths: [2]string{
			filepath.Join(dir, "slot_a.img"),
			filepath.Join(dir, "slot_b.img"),
		},
		MaxBootAttempts: 3,
	})
	require.NoError(t, err)
	return m
}

func stageFirmware(t *testing.T, m *Manager, image []byte, version uint32) {
	t.Helper()
	require.NoError(t, m.BeginUpdate())
	require.NoError(t, m.WriteFirmware(image, version))
}

func TestFreshManagerDefaults(t *testing.T) {
	m := newTestManager(t)

	assert.Equal(t, SlotA, m.Active())
	assert.Equal(t, SlotB, m.Inactive())
	assert.Equal(t, StateActive, m.Metadata(SlotA).State)
	assert.Equal(t, StateEmpty, m.Metadata(SlotB).State)
	assert.Equal(t, uint32(0), m.BootStatus().BootCount)
}

func TestUpdateVerifyActivateCycle(t *testing.T) {
	m := newTestManager(t)
	image := []byte("new firmware image contents")
	digest := sha256.Sum256(image)

	stageFirmware(t, m, image, 0x00020000)
	assert.Equal(t, StateUpdating, m.Metadata(SlotB).State)

	require.NoError(t, m.Verify(hex.EncodeToString(digest[:])))
	assert.Equal(t, StateReady, m.Metadata(SlotB).State)

	require.NoError(t, m.ActivateInactive())
	assert.Equal(t, SlotB, m.Active())
	assert.Equal(t, StateActive, m.Metadata(SlotB).State)
	assert.Equal(t, StateReady, m.Metadata(SlotA).State)
	assert.Equal(t, uint32(0), m.BootStatus().BootCount)
}

func TestVerifyRejectsWrongDigest(t *testing.T) {
	m := newTestManager(t)
	stageFirmware(t, m, []byte("image"), 2)

	wrong := sha256.Sum256([]byte("other"))
	err := m.Verify(hex.EncodeToString(wrong[:]))
	require.Error(t, err)
	assert.Equal(t, StateError, m.Metadata(SlotB).State)
}

func TestVerifyRejectsMalformedDigest(t *testing.T) {
	m := newTestManager(t)
	stageFirmware(t, m, []byte("image"), 2)

	require.Error(t, m.Verify("not-hex"))
	assert.Equal(t, StateError, m.Metadata(SlotB).State)
}

func TestVerifyDetectsTamperedSlotImage(t *testing.T) {
	m := newTestManager(t)
	stageFirmware(t, m, []byte("image"), 2)

	// Corrupt the slot file after the hash was recorded.
	require.NoError(t, os.WriteFile(m.SlotPath(SlotB), []byte("tampered"), 0o644))

	require.Error(t, m.Verify(""))
	assert.Equal(t, StateError, m.Metadata(SlotB).State)
}

func TestActivateRequiresVerifiedSlot(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.ActivateInactive())

	stageFirmware(t, m, []byte("image"), 2)
	assert.Error(t, m.ActivateInactive(), "updating slot must not activate")
}

func TestWriteFirmwareRequiresBeginUpdate(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.WriteFirmware([]byte("image"), 2))
}

func TestBootCountInvariant(t *testing.T) {
	m := newTestManager(t)

	// Counter climbs on every unconfirmed boot.
	for want := uint32(1); want <= 2; want++ {
		n, err := m.RecordBootAttempt()
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.False(t, m.NeedsRollback())
	}

	n, err := m.RecordBootAttempt()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
	assert.True(t, m.NeedsRollback())

	// Confirming a boot resets the counter.
	require.NoError(t, m.MarkBootSuccess())
	assert.Equal(t, uint32(0), m.BootStatus().BootCount)
	assert.False(t, m.NeedsRollback())
	assert.NotZero(t, m.BootStatus().LastBootTime)
}

func TestRollbackIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	image := []byte("v2 image")
	digest := sha256.Sum256(image)

	stageFirmware(t, m, image, 2)
	require.NoError(t, m.Verify(hex.EncodeToString(digest[:])))
	require.NoError(t, m.ActivateInactive())
	require.Equal(t, SlotB, m.Active())

	// Three failed boots on the new slot.
	for i := 0; i < 3; i++ {
		_, err := m.RecordBootAttempt()
		require.NoError(t, err)
	}
	require.True(t, m.NeedsRollback())

	require.NoError(t, m.Rollback())
	assert.Equal(t, SlotA, m.Active())
	assert.Equal(t, StateRollback, m.Metadata(SlotB).State)
	assert.Equal(t, StateActive, m.Metadata(SlotA).State)
	assert.Equal(t, uint32(0), m.BootStatus().BootCount)

	// A second rollback must change nothing.
	require.NoError(t, m.Rollback())
	assert.Equal(t, SlotA, m.Active())
	assert.Equal(t, StateRollback, m.Metadata(SlotB).State)
	assert.Equal(t, uint32(0), m.BootStatus().BootCount)
}

func TestRollbackWithoutFallbackFails(t *testing.T) {
	m := newTestManager(t)
	// Slot B is empty; rolling back from A has nowhere to go.
	assert.Error(t, m.Rollback())
}

func TestRecordsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DataDir: dir,
		SlotPaths: [2]string{
			filepath.Join(dir, "slot_a.img"),
			filepath.Join(dir, "slot_b.img"),
		},
		MaxBootAttempts: 3,
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)

	image := []byte("persisted image")
	digest := sha256.Sum256(image)
	require.NoError(t, m.BeginUpdate())
	require.NoError(t, m.WriteFirmware(image, 7))
	require.NoError(t, m.Verify(hex.EncodeToString(digest[:])))
	require.NoError(t, m.ActivateInactive())

	reloaded, err := NewManager(cfg)
	require.NoError(t, err)
	assert.Equal(t, SlotB, reloaded.Active())
	assert.Equal(t, uint32(7), reloaded.Metadata(SlotB).FirmwareVersion)
	assert.Equal(t, StateActive, reloaded.Metadata(SlotB).State)
	assert.Equal(t, StateReady, reloaded.Metadata(SlotA).State)
}

func TestCorruptRecordsAreReinitialized(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		DataDir: dir,
		SlotPaths: [2]string{
			filepath.Join(dir, "slot_a.img"),
			filepath.Join(dir, "slot_b.img"),
		},
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	_, err = m.RecordBootAttempt() // force records onto disk
	require.NoError(t, err)

	// Smash the boot status record.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boot_status.bin"), []byte("garbage"), 0o644))

	reloaded, err := NewManager(cfg)
	require.NoError(t, err)
	assert.Equal(t, SlotA, reloaded.Active())
	assert.Equal(t, uint32(0), reloaded.BootStatus().BootCount)
}

func TestRecordCodecRoundTrip(t *testing.T) {
	meta := Metadata{
		FirmwareVersion: 0x00010203,
		BuildTimestamp:  1700000000,
		TotalSize:       123456,
		State:           StateReady,
	}
	copy(meta.SHA256[:], []byte("0123456789abcdef0123456789abcdef"))

	var decoded Metadata
	require.NoError(t, decoded.UnmarshalBinary(meta.MarshalBinary()))
	assert.Equal(t, meta, decoded)

	boot := BootStatus{BootTarget: SlotB, StateA: StateReady, StateB: StateActive, BootCount: 2, LastBootTime: 1700000001}
	var decodedBoot BootStatus
	require.NoError(t, decodedBoot.UnmarshalBinary(boot.MarshalBinary()))
	assert.Equal(t, boot, decodedBoot)

	// Magic-gated: foreign bytes never parse.
	assert.Error(t, decoded.UnmarshalBinary(make([]byte, MetadataSize)))
	assert.Error(t, decodedBoot.UnmarshalBinary(make([]byte, BootStatusSize)))
}
