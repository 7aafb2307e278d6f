package doip

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message is a single DoIP frame: an 8-byte header followed by the payload.
type Message struct {
	PayloadType uint16
	Payload     []byte
}

// Encode serializes the message into a wire frame.
func (m *Message) Encode() []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	buf[0] = ProtocolVersion
	buf[1] = InverseProtocolVersion
	binary.BigEndian.PutUint16(buf[2:4], m.PayloadType)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(m.Payload)))
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// Decode parses a complete frame from data. The frame must be exactly one
// message; truncated or inconsistent input returns an error.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("doip: frame too short: %d bytes", len(data))
	}
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(data[4:8])
	if uint32(len(data)-HeaderSize) != payloadLen {
		return nil, fmt.Errorf("doip: payload length mismatch: header says %d, have %d",
			payloadLen, len(data)-HeaderSize)
	}

	return &Message{
		PayloadType: binary.BigEndian.Uint16(data[2:4]),
		Payload:     data[HeaderSize:],
	}, nil
}

// ReadMessage reads one frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("doip: read header: %w", err)
	}
	if err := checkHeader(header[:]); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(header[4:8])
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("doip: payload length %d exceeds limit", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("doip: read payload: %w", err)
	}

	return &Message{
		PayloadType: binary.BigEndian.Uint16(header[2:4]),
		Payload:     payload,
	}, nil
}

func checkHeader(header []byte) error {
	if header[0] != ProtocolVersion {
		return fmt.Errorf("doip: unsupported protocol version 0x%02X", header[0])
	}
	if header[1] != InverseProtocolVersion {
		return fmt.Errorf("doip: inverse version 0x%02X does not match version 0x%02X",
			header[1], header[0])
	}
	return nil
}
