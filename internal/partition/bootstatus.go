package partition

import (
	"encoding/binary"
	"fmt"
)

// BootStatusSize is the fixed on-disk size of the boot status record.
const BootStatusSize = 256

// BootStatus tracks which slot the bootloader selects and how many
// boots have happened since the last confirmed-good one. Layout:
// magic u32, boot target u8, state A u8, state B u8, reserved u8,
// boot count u32, last boot timestamp u32, padding to 256 bytes.
type BootStatus struct {
	BootTarget    ID
	StateA        State
	StateB        State
	BootCount     uint32
	LastBootTime  uint32
}

// MarshalBinary serializes the record to its fixed on-disk form.
func (b *BootStatus) MarshalBinary() []byte {
	buf := make([]byte, BootStatusSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	buf[4] = byte(b.BootTarget)
	buf[5] = byte(b.StateA)
	buf[6] = byte(b.StateB)
	binary.LittleEndian.PutUint32(buf[8:12], b.BootCount)
	binary.LittleEndian.PutUint32(buf[12:16], b.LastBootTime)
	return buf
}

// UnmarshalBinary parses a record, rejecting corrupt input.
func (b *BootStatus) UnmarshalBinary(data []byte) error {
	if len(data) < BootStatusSize {
		return fmt.Errorf("partition: boot status record needs %d bytes, have %d", BootStatusSize, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return fmt.Errorf("partition: bad boot status magic 0x%08X", magic)
	}
	if data[4] > byte(SlotB) {
		return fmt.Errorf("partition: invalid boot target %d", data[4])
	}
	if data[5] > byte(StateRollback) || data[6] > byte(StateRollback) {
		return fmt.Errorf("partition: invalid slot state in boot record")
	}

	b.BootTarget = ID(data[4])
	b.StateA = State(data[5])
	b.StateB = State(data[6])
	b.BootCount = binary.LittleEndian.Uint32(data[8:12])
	b.LastBootTime = binary.LittleEndian.Uint32(data[12:16])
	return nil
}
