package doip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		payloadType uint16
		payload     []byte
	}{
		{"empty payload", TypeAliveCheckRequest, nil},
		{"routing activation", TypeRoutingActivationRequest, []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"diagnostic", TypeDiagnosticMessage, []byte{0x02, 0x00, 0x01, 0x00, 0x22, 0xF1, 0x90}},
		{"large payload", TypeDiagnosticMessage, bytes.Repeat([]byte{0xAB}, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Message{PayloadType: tt.payloadType, Payload: tt.payload}
			frame := in.Encode()

			require.Len(t, frame, HeaderSize+len(tt.payload))
			assert.Equal(t, byte(ProtocolVersion), frame[0])
			assert.Equal(t, byte(InverseProtocolVersion), frame[1])

			out, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.payloadType, out.PayloadType)
			assert.Equal(t, tt.payload, append([]byte(nil), out.Payload...)[:len(tt.payload)])

			fromReader, err := ReadMessage(bytes.NewReader(frame))
			require.NoError(t, err)
			assert.Equal(t, tt.payloadType, fromReader.PayloadType)
		})
	}
}

func TestDecodeRejectsTruncatedFrames(t *testing.T) {
	full := (&Message{PayloadType: TypeDiagnosticMessage, Payload: []byte{1, 2, 3, 4}}).Encode()

	for cut := 0; cut < len(full); cut++ {
		_, err := Decode(full[:cut])
		assert.Error(t, err, "decode of %d/%d bytes must fail", cut, len(full))
	}
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	frame := (&Message{PayloadType: TypeDiagnosticMessage, Payload: []byte{0x22}}).Encode()

	badVersion := append([]byte(nil), frame...)
	badVersion[0] = 0x01
	_, err := Decode(badVersion)
	assert.Error(t, err)

	badInverse := append([]byte(nil), frame...)
	badInverse[1] = 0xFE
	_, err = Decode(badInverse)
	assert.Error(t, err)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	frame := (&Message{PayloadType: TypeDiagnosticMessage, Payload: []byte{0x22, 0xF1, 0x90}}).Encode()

	// Extra trailing byte makes the header length inconsistent.
	_, err := Decode(append(frame, 0x00))
	assert.Error(t, err)
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	frame := (&Message{PayloadType: TypeDiagnosticMessage, Payload: []byte{0x22}}).Encode()
	frame[4] = 0xFF // payload length = 0xFF000001
	_, err := ReadMessage(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestSplitRecordsRequiresExactLength(t *testing.T) {
	record := bytes.Repeat([]byte{0xAB}, vciRecordSize)

	payload := append([]byte{2}, record...)
	payload = append(payload, record...)
	records, err := splitRecords(payload, vciRecordSize)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = splitRecords(payload[:len(payload)-1], vciRecordSize)
	assert.Error(t, err, "short payload must fail")

	_, err = splitRecords(append(payload, 0x00), vciRecordSize)
	assert.Error(t, err, "surplus trailing bytes must fail")

	_, err = splitRecords(nil, vciRecordSize)
	assert.Error(t, err, "empty payload must fail")
}
