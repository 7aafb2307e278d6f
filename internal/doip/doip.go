// Package doip implements the DoIP transport and the UDS services the
// gateway uses to talk to zonal gateways (ISO 13400 / ISO 14229 subset).
package doip

// Protocol constants. All multi-byte wire fields are big-endian.
const (
	ProtocolVersion        = 0x02
	InverseProtocolVersion = 0xFD

	HeaderSize  = 8
	DefaultPort = 13400

	// Logical addresses.
	AddrGateway      = 0x0200
	AddrZonalGateway = 0x0100
)

// Payload types.
const (
	TypeRoutingActivationRequest  uint16 = 0x0005
	TypeRoutingActivationResponse uint16 = 0x0006
	TypeAliveCheckRequest         uint16 = 0x0007
	TypeAliveCheckResponse        uint16 = 0x0008

	TypeDiagnosticMessage uint16 = 0x8001
	TypeDiagnosticAck     uint16 = 0x8002
	TypeDiagnosticNack    uint16 = 0x8003

	// OEM extensions carrying collection reports.
	TypeVCIReport       uint16 = 0x9000
	TypeReadinessReport uint16 = 0x9001
)

// Routing activation.
const (
	ActivationTypeDefault     = 0x00
	ActivationResponseSuccess = 0x10
)

// UDS service identifiers.
const (
	SIDReadDataByIdentifier  = 0x22
	SIDWriteDataByIdentifier = 0x2E
	SIDRoutineControl        = 0x31
	SIDRequestDownload       = 0x34
	SIDTransferData          = 0x36
	SIDRequestTransferExit   = 0x37

	PositiveResponseOffset = 0x40
	NegativeResponseSID    = 0x7F

	RoutineControlStart = 0x01
)

// Routine identifiers for the collection flows.
const (
	RIDVCICollect      uint16 = 0xF001
	RIDVCIReport       uint16 = 0xF002
	RIDReadinessCheck  uint16 = 0xF003
	RIDReadinessReport uint16 = 0xF004
)

// TransferChunkSize is the TransferData block payload size.
const TransferChunkSize = 1024

// MaxPayloadSize bounds incoming frames so a corrupt length field cannot
// make us allocate gigabytes.
const MaxPayloadSize = 64 * 1024 * 1024
