// Package partition manages the gateway's A/B firmware slots: the
// persisted per-slot metadata, the boot status record and the
// activation / rollback decisions built on them.
package partition

import (
	"encoding/binary"
	"fmt"
)

// Magic guards both persisted record types ("VMGP" little-endian).
const Magic = 0x564D4750

// MetadataSize is the fixed on-disk size of a slot metadata record.
const MetadataSize = 1024

// State is the lifecycle state of one firmware slot.
type State uint8

const (
	StateUnknown State = iota
	StateEmpty
	StateReady
	StateActive
	StateUpdating
	StateError
	StateRollback
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateUpdating:
		return "updating"
	case StateError:
		return "error"
	case StateRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// ID names one of the two firmware slots.
type ID uint8

const (
	SlotA ID = 0
	SlotB ID = 1
)

func (id ID) String() string {
	if id == SlotA {
		return "A"
	}
	return "B"
}

// Other returns the opposite slot.
func (id ID) Other() ID {
	if id == SlotA {
		return SlotB
	}
	return SlotA
}

// Metadata is the persisted description of one slot's firmware image.
// The on-disk layout is private to the gateway and little-endian:
// magic u32, firmware version u32, build timestamp u32, total size u32,
// sha256[32], state u8, padding to 1024 bytes.
type Metadata struct {
	FirmwareVersion uint32
	BuildTimestamp  uint32
	TotalSize       uint32
	SHA256          [32]byte
	State           State
}

// MarshalBinary serializes the record to its fixed on-disk form.
func (m *Metadata) MarshalBinary() []byte {
	buf := make([]byte, MetadataSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], m.FirmwareVersion)
	binary.LittleEndian.PutUint32(buf[8:12], m.BuildTimestamp)
	binary.LittleEndian.PutUint32(buf[12:16], m.TotalSize)
	copy(buf[16:48], m.SHA256[:])
	buf[48] = byte(m.State)
	return buf
}

// UnmarshalBinary parses a record. Anything that fails the magic or
// size check is rejected so the caller can fall back to defaults
// instead of trusting garbage.
func (m *Metadata) UnmarshalBinary(data []byte) error {
	if len(data) < MetadataSize {
		return fmt.Errorf("partition: metadata record needs %d bytes, have %d", MetadataSize, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return fmt.Errorf("partition: bad metadata magic 0x%08X", magic)
	}

	m.FirmwareVersion = binary.LittleEndian.Uint32(data[4:8])
	m.BuildTimestamp = binary.LittleEndian.Uint32(data[8:12])
	m.TotalSize = binary.LittleEndian.Uint32(data[12:16])
	copy(m.SHA256[:], data[16:48])

	if data[48] > byte(StateRollback) {
		return fmt.Errorf("partition: invalid slot state %d", data[48])
	}
	m.State = State(data[48])
	return nil
}
