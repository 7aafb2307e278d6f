// Package doiptest provides an in-process zonal gateway for tests.
package doiptest

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/doip"
)

// FakeZGW is a minimal DoIP peer listening on a loopback socket. It
// answers routing activation, the UDS download sequence and the OEM
// collection routines well enough to drive the client through its flows.
type FakeZGW struct {
	ln net.Listener

	mu sync.Mutex

	// RefuseActivation makes routing activation answer with code 0x06.
	RefuseActivation bool

	// FailTransferAt makes the n-th TransferData block (1-based) answer
	// with a negative response. Zero disables the fault.
	FailTransferAt int

	// RoutineStatus overrides the status byte returned for the given RID.
	RoutineStatus map[uint16]byte

	// VCIRecords / ReadinessRecords are served by the report routines.
	VCIRecords       [][]byte
	ReadinessRecords [][]byte

	// Received accumulates the TransferData payload bytes per session.
	received []byte
	blocks   int
}

// Start listens on an ephemeral loopback port and serves connections
// until Close.
func Start() (*FakeZGW, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	z := &FakeZGW{ln: ln, RoutineStatus: map[uint16]byte{}}
	go z.acceptLoop()
	return z, nil
}

// Addr returns the "host:port" the fake listens on.
func (z *FakeZGW) Addr() string {
	return z.ln.Addr().String()
}

// Close stops the listener.
func (z *FakeZGW) Close() {
	_ = z.ln.Close()
}

// Received returns all firmware bytes collected via TransferData.
func (z *FakeZGW) Received() []byte {
	z.mu.Lock()
	defer z.mu.Unlock()
	out := make([]byte, len(z.received))
	copy(out, z.received)
	return out
}

// ResetReceived clears the transfer capture buffer.
func (z *FakeZGW) ResetReceived() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.received = nil
	z.blocks = 0
}

func (z *FakeZGW) acceptLoop() {
	for {
		conn, err := z.ln.Accept()
		if err != nil {
			return
		}
		go z.serve(conn)
	}
}

func (z *FakeZGW) serve(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := doip.ReadMessage(conn)
		if err != nil {
			return
		}

		switch msg.PayloadType {
		case doip.TypeRoutingActivationRequest:
			z.handleActivation(conn, msg)
		case doip.TypeDiagnosticMessage:
			if !z.handleDiagnostic(conn, msg) {
				return
			}
		}
	}
}

func (z *FakeZGW) handleActivation(conn net.Conn, msg *doip.Message) {
	sa := binary.BigEndian.Uint16(msg.Payload[0:2])

	code := byte(doip.ActivationResponseSuccess)
	if z.RefuseActivation {
		code = 0x06
	}

	resp := make([]byte, 9)
	binary.BigEndian.PutUint16(resp[0:2], sa)
	binary.BigEndian.PutUint16(resp[2:4], doip.AddrZonalGateway)
	resp[4] = code
	z.write(conn, doip.TypeRoutingActivationResponse, resp)
}

// handleDiagnostic answers one UDS request. Returns false to drop the
// connection.
func (z *FakeZGW) handleDiagnostic(conn net.Conn, msg *doip.Message) bool {
	sa := binary.BigEndian.Uint16(msg.Payload[0:2])
	ta := binary.BigEndian.Uint16(msg.Payload[2:4])
	uds := msg.Payload[4:]
	sid := uds[0]

	reply := func(resp []byte) {
		payload := make([]byte, 0, 4+len(resp))
		payload = binary.BigEndian.AppendUint16(payload, ta)
		payload = binary.BigEndian.AppendUint16(payload, sa)
		payload = append(payload, resp...)
		z.write(conn, doip.TypeDiagnosticMessage, payload)
	}
	negative := func(nrc byte) {
		reply([]byte{doip.NegativeResponseSID, sid, nrc})
	}

	switch sid {
	case doip.SIDRoutineControl:
		rid := binary.BigEndian.Uint16(uds[2:4])
		status := z.RoutineStatus[rid]
		reply([]byte{sid + doip.PositiveResponseOffset, uds[1], uds[2], uds[3], status})
		if status == 0 {
			z.sendReport(conn, rid)
		}

	case doip.SIDRequestDownload:
		z.ResetReceived()
		reply([]byte{sid + doip.PositiveResponseOffset})

	case doip.SIDTransferData:
		z.mu.Lock()
		z.blocks++
		fail := z.FailTransferAt > 0 && z.blocks == z.FailTransferAt
		if !fail {
			z.received = append(z.received, uds[2:]...)
		}
		z.mu.Unlock()
		if fail {
			negative(0x72) // generalProgrammingFailure
			return true
		}
		reply([]byte{sid + doip.PositiveResponseOffset, uds[1]})

	case doip.SIDRequestTransferExit:
		reply([]byte{sid + doip.PositiveResponseOffset})

	case doip.SIDReadDataByIdentifier:
		reply(append([]byte{sid + doip.PositiveResponseOffset, uds[1], uds[2]}, []byte("FAKE-ZGW")...))

	default:
		negative(0x11) // serviceNotSupported
	}

	return true
}

// sendReport emits the out-of-band report frame that follows a report
// routine's positive response.
func (z *FakeZGW) sendReport(conn net.Conn, rid uint16) {
	switch rid {
	case doip.RIDVCIReport:
		z.write(conn, doip.TypeVCIReport, packRecords(z.VCIRecords))
	case doip.RIDReadinessReport:
		z.write(conn, doip.TypeReadinessReport, packRecords(z.ReadinessRecords))
	}
}

func (z *FakeZGW) write(conn net.Conn, payloadType uint16, payload []byte) {
	m := &doip.Message{PayloadType: payloadType, Payload: payload}
	_, _ = conn.Write(m.Encode())
}

func packRecords(records [][]byte) []byte {
	out := []byte{byte(len(records))}
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// VCIRecord builds a wire-format VCI record.
func VCIRecord(ecuID, sw, hw, serial string) []byte {
	r := make([]byte, 48)
	copy(r[0:16], ecuID)
	copy(r[16:24], sw)
	copy(r[24:32], hw)
	copy(r[32:48], serial)
	return r
}

// ReadinessRecord builds a wire-format readiness record.
func ReadinessRecord(ecuID string, parked, engineOff bool, batteryMV uint16, memoryKB uint32, doors, compatible, ready bool) []byte {
	r := make([]byte, 27)
	copy(r[0:16], ecuID)
	r[16] = b2u(parked)
	r[17] = b2u(engineOff)
	binary.BigEndian.PutUint16(r[18:20], batteryMV)
	binary.BigEndian.PutUint32(r[20:24], memoryKB)
	r[24] = b2u(doors)
	r[25] = b2u(compatible)
	r[26] = b2u(ready)
	return r
}

func b2u(v bool) byte {
	if v {
		return 1
	}
	return 0
}
