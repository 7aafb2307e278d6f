package doip

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/pkg/log"
)

// Config holds the parameters of one DoIP session.
type Config struct {
	// Endpoint is the "host:port" address of the zonal gateway.
	Endpoint string

	SourceAddr uint16
	TargetAddr uint16

	ConnectTimeout    time.Duration
	ActivationTimeout time.Duration
	DiagTimeout       time.Duration
}

func (c *Config) setDefaults() {
	if c.SourceAddr == 0 {
		c.SourceAddr = AddrGateway
	}
	if c.TargetAddr == 0 {
		c.TargetAddr = AddrZonalGateway
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.ActivationTimeout == 0 {
		c.ActivationTimeout = 2 * time.Second
	}
	if c.DiagTimeout == 0 {
		c.DiagTimeout = 5 * time.Second
	}
}

// Client is a DoIP tester session towards one zonal gateway.
// It is not safe for concurrent use; the orchestrator serializes access.
type Client struct {
	cfg    Config
	conn   net.Conn
	active bool

	logger log.Logger
}

// NewClient creates a client for the given endpoint. Connect must be
// called before any diagnostic operation.
func NewClient(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:    cfg,
		logger: log.WithName("doip").WithValues("endpoint", cfg.Endpoint),
	}
}

// Connect establishes the TCP session and performs routing activation.
func (c *Client) Connect(ctx context.Context) error {
	if c.active {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("doip: connect %s: %w", c.cfg.Endpoint, err)
	}
	c.conn = conn

	if err := c.routingActivation(); err != nil {
		_ = conn.Close()
		c.conn = nil
		return err
	}

	c.active = true
	c.logger.Info("Routing activated",
		"source", fmt.Sprintf("0x%04X", c.cfg.SourceAddr),
		"target", fmt.Sprintf("0x%04X", c.cfg.TargetAddr))
	return nil
}

// Active reports whether the session is connected and routing-activated.
func (c *Client) Active() bool {
	return c.active
}

// Close tears down the session.
func (c *Client) Close() error {
	c.active = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// routingActivation sends the activation request and checks the response
// code. Request payload: SA(2) + activation type(1) + reserved(4).
func (c *Client) routingActivation() error {
	payload := make([]byte, 7)
	binary.BigEndian.PutUint16(payload[0:2], c.cfg.SourceAddr)
	payload[2] = ActivationTypeDefault

	if err := c.send(&Message{TypeRoutingActivationRequest, payload}); err != nil {
		return err
	}

	resp, err := c.receive(c.cfg.ActivationTimeout, TypeRoutingActivationResponse)
	if err != nil {
		return fmt.Errorf("doip: routing activation: %w", err)
	}

	// Response payload: SA(2) + TA(2) + code(1) + reserved(4).
	if len(resp.Payload) < 5 {
		return fmt.Errorf("doip: routing activation response too short: %d bytes", len(resp.Payload))
	}
	if code := resp.Payload[4]; code != ActivationResponseSuccess {
		return fmt.Errorf("doip: routing activation refused: code 0x%02X", code)
	}

	return nil
}

// Diagnostic sends one UDS request and returns the response bytes starting
// at the (positive) response SID. Negative responses and SID mismatches
// are returned as errors.
func (c *Client) Diagnostic(service byte, data []byte) ([]byte, error) {
	if !c.active {
		return nil, fmt.Errorf("doip: session not active")
	}

	payload := make([]byte, 0, 5+len(data))
	payload = binary.BigEndian.AppendUint16(payload, c.cfg.SourceAddr)
	payload = binary.BigEndian.AppendUint16(payload, c.cfg.TargetAddr)
	payload = append(payload, service)
	payload = append(payload, data...)

	if err := c.send(&Message{TypeDiagnosticMessage, payload}); err != nil {
		return nil, err
	}

	resp, err := c.receive(c.cfg.DiagTimeout, TypeDiagnosticMessage)
	if err != nil {
		return nil, fmt.Errorf("doip: diagnostic 0x%02X: %w", service, err)
	}

	// Strip SA + TA.
	if len(resp.Payload) < 5 {
		return nil, fmt.Errorf("doip: diagnostic response too short: %d bytes", len(resp.Payload))
	}
	uds := resp.Payload[4:]

	if uds[0] == NegativeResponseSID {
		nrc := byte(0)
		if len(uds) >= 3 {
			nrc = uds[2]
		}
		return nil, fmt.Errorf("doip: negative response to 0x%02X: NRC 0x%02X", service, nrc)
	}
	if uds[0] != service+PositiveResponseOffset {
		return nil, fmt.Errorf("doip: unexpected response SID 0x%02X to request 0x%02X", uds[0], service)
	}

	return uds, nil
}

func (c *Client) send(m *Message) error {
	if c.conn == nil {
		return fmt.Errorf("doip: not connected")
	}
	if _, err := c.conn.Write(m.Encode()); err != nil {
		return fmt.Errorf("doip: send 0x%04X: %w", m.PayloadType, err)
	}
	return nil
}

// receive reads frames until one of the wanted payload type arrives.
// Diagnostic acks and alive checks are consumed silently.
func (c *Client) receive(timeout time.Duration, want uint16) (*Message, error) {
	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return nil, err
		}

		switch msg.PayloadType {
		case want:
			return msg, nil
		case TypeDiagnosticAck:
			continue
		case TypeDiagnosticNack:
			return nil, fmt.Errorf("diagnostic message rejected by peer")
		case TypeAliveCheckRequest:
			if err := c.send(&Message{TypeAliveCheckResponse, nil}); err != nil {
				return nil, err
			}
		default:
			c.logger.Debug("Ignoring unexpected frame", "payloadType", fmt.Sprintf("0x%04X", msg.PayloadType))
		}
	}
}
