package partition

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// Config holds the manager's file locations and rollback policy.
type Config struct {
	// DataDir holds the metadata and boot status records.
	DataDir string

	// SlotPaths are the firmware image files of slot A and slot B.
	SlotPaths [2]string

	// MaxBootAttempts is how many unconfirmed boots are tolerated
	// before NeedsRollback reports true.
	MaxBootAttempts uint32
}

// Manager owns the two firmware slots and the persisted records
// describing them. All operations are serialized.
type Manager struct {
	cfg Config

	mu   sync.Mutex
	meta [2]Metadata
	boot BootStatus

	logger log.Logger
}

// NewManager loads the persisted records from cfg.DataDir. Missing or
// corrupt records are reinitialized to defaults, never trusted.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MaxBootAttempts == 0 {
		cfg.MaxBootAttempts = 3
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("partition: create data dir: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		logger: log.WithName("partition"),
	}
	m.load()
	return m, nil
}

func (m *Manager) metadataPath(id ID) string {
	return filepath.Join(m.cfg.DataDir, fmt.Sprintf("metadata_%s.bin", id))
}

func (m *Manager) bootStatusPath() string {
	return filepath.Join(m.cfg.DataDir, "boot_status.bin")
}

// SlotPath returns the firmware image path of a slot.
func (m *Manager) SlotPath(id ID) string {
	return m.cfg.SlotPaths[id]
}

func (m *Manager) load() {
	for _, id := range []ID{SlotA, SlotB} {
		data, err := os.ReadFile(m.metadataPath(id))
		if err == nil {
			err = m.meta[id].UnmarshalBinary(data)
		}
		if err != nil {
			m.logger.Warn("Reinitializing slot metadata", "slot", id.String(), "reason", err.Error())
			m.meta[id] = Metadata{State: StateEmpty}
		}
	}

	data, err := os.ReadFile(m.bootStatusPath())
	if err == nil {
		err = m.boot.UnmarshalBinary(data)
	}
	if err != nil {
		m.logger.Warn("Reinitializing boot status", "reason", err.Error())
		m.boot = BootStatus{
			BootTarget: SlotA,
			StateA:     StateActive,
			StateB:     StateEmpty,
		}
		m.meta[SlotA].State = StateActive
	}
}

// persist writes all records. Each file is replaced via rename so a
// crash mid-write leaves the previous record intact.
func (m *Manager) persist() error {
	m.boot.StateA = m.meta[SlotA].State
	m.boot.StateB = m.meta[SlotB].State

	for _, id := range []ID{SlotA, SlotB} {
		if err := writeFileAtomic(m.metadataPath(id), m.meta[id].MarshalBinary()); err != nil {
			return err
		}
	}
	return writeFileAtomic(m.bootStatusPath(), m.boot.MarshalBinary())
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("partition: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("partition: replace %s: %w", path, err)
	}
	return nil
}

// Active returns the slot the bootloader currently targets.
func (m *Manager) Active() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boot.BootTarget
}

// Inactive returns the slot updates are written to.
func (m *Manager) Inactive() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boot.BootTarget.Other()
}

// Metadata returns a copy of a slot's metadata record.
func (m *Manager) Metadata(id ID) Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[id]
}

// BootStatus returns a copy of the boot status record.
func (m *Manager) BootStatus() BootStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boot
}

// BeginUpdate marks the inactive slot as receiving an update.
func (m *Manager) BeginUpdate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.boot.BootTarget.Other()
	if m.meta[target].State == StateUpdating {
		return nil
	}

	m.meta[target] = Metadata{State: StateUpdating}
	m.logger.Info("Slot update started", "slot", target.String())
	return m.persist()
}

// WriteFirmware stores image in the inactive slot and records its size,
// hash and version. The slot stays in the updating state until Verify.
func (m *Manager) WriteFirmware(image []byte, version uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.boot.BootTarget.Other()
	if m.meta[target].State != StateUpdating {
		return fmt.Errorf("partition: slot %s not in updating state", target)
	}

	if err := writeFileAtomic(m.cfg.SlotPaths[target], image); err != nil {
		return err
	}

	m.meta[target].FirmwareVersion = version
	m.meta[target].BuildTimestamp = uint32(time.Now().Unix())
	m.meta[target].TotalSize = uint32(len(image))
	m.meta[target].SHA256 = sha256.Sum256(image)

	m.logger.Info("Firmware written", "slot", target.String(), "bytes", len(image), "version", version)
	return m.persist()
}

// Verify re-reads the inactive slot's image and checks it against the
// recorded hash and, when given, the expected hex digest announced by
// the campaign. Success promotes the slot to ready; failure demotes it
// to error.
func (m *Manager) Verify(expectedHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.boot.BootTarget.Other()
	image, err := os.ReadFile(m.cfg.SlotPaths[target])
	if err != nil {
		m.meta[target].State = StateError
		_ = m.persist()
		return fmt.Errorf("partition: read slot %s image: %w", target, err)
	}

	sum := sha256.Sum256(image)
	if !bytes.Equal(sum[:], m.meta[target].SHA256[:]) {
		m.meta[target].State = StateError
		_ = m.persist()
		return fmt.Errorf("partition: slot %s image does not match recorded hash", target)
	}

	if expectedHex != "" {
		expected, err := hex.DecodeString(expectedHex)
		if err != nil || len(expected) != sha256.Size {
			m.meta[target].State = StateError
			_ = m.persist()
			return fmt.Errorf("partition: malformed expected digest %q", expectedHex)
		}
		if !bytes.Equal(sum[:], expected) {
			m.meta[target].State = StateError
			_ = m.persist()
			return fmt.Errorf("partition: slot %s digest %x does not match expected %s", target, sum, expectedHex)
		}
	}

	m.meta[target].State = StateReady
	m.logger.Info("Slot verified", "slot", target.String(), "sha256", hex.EncodeToString(sum[:]))
	return m.persist()
}

// ActivateInactive flips the boot target to the verified inactive slot.
// The previously active slot stays bootable as the rollback fallback.
func (m *Manager) ActivateInactive() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.boot.BootTarget.Other()
	if m.meta[target].State != StateReady {
		return fmt.Errorf("partition: slot %s is %s, must be ready to activate", target, m.meta[target].State)
	}

	old := m.boot.BootTarget
	m.boot.BootTarget = target
	m.boot.BootCount = 0
	m.meta[target].State = StateActive
	m.meta[old].State = StateReady

	m.logger.Info("Boot target switched", "from", old.String(), "to", target.String())
	return m.persist()
}

// RecordBootAttempt increments the boot counter. It is called once per
// boot before the gateway is known to be healthy.
func (m *Manager) RecordBootAttempt() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.boot.BootCount++
	return m.boot.BootCount, m.persist()
}

// MarkBootSuccess confirms the current boot: the counter resets and the
// boot timestamp is updated.
func (m *Manager) MarkBootSuccess() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.boot.BootCount = 0
	m.boot.LastBootTime = uint32(time.Now().Unix())
	m.meta[m.boot.BootTarget].State = StateActive

	m.logger.Info("Boot confirmed", "slot", m.boot.BootTarget.String())
	return m.persist()
}

// NeedsRollback reports whether the unconfirmed boot count has reached
// the rollback threshold.
func (m *Manager) NeedsRollback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boot.BootCount >= m.cfg.MaxBootAttempts
}

// Rollback switches back to the fallback slot and marks the failed one.
// Calling it again after a completed rollback is a no-op, so a crash
// between rollback and reboot cannot flip the target twice.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fallback := m.boot.BootTarget.Other()
	if m.meta[fallback].State == StateRollback && m.boot.BootCount == 0 {
		m.logger.Info("Rollback already performed", "target", m.boot.BootTarget.String())
		return nil
	}

	if m.meta[fallback].State == StateEmpty {
		return fmt.Errorf("partition: no fallback image in slot %s", fallback)
	}

	failed := m.boot.BootTarget
	m.boot.BootTarget = fallback
	m.boot.BootCount = 0
	m.meta[failed].State = StateRollback
	m.meta[fallback].State = StateActive

	m.logger.Warn("Rolled back boot target", "failed", failed.String(), "fallback", fallback.String())
	return m.persist()
}
