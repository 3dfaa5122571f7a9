package telemetry

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/colorfulnotion/regwin/common"
	"github.com/colorfulnotion/regwin/log"
	"github.com/google/uuid"
)

// Event discriminators.
const (
	RunStarted  byte = 10
	RunFinished byte = 11
	RunFaulted  byte = 12
)

const protocolVersion = 0

// ClientInfo is sent once after connecting.
type ClientInfo struct {
	Name    string
	Version string
}

// TelemetryClient streams run events to a TCP sink. Every message is a
// little-endian u32 length followed by the content; event content is an
// 8-byte microsecond timestamp, a discriminator byte and the payload.
type TelemetryClient struct {
	addr        string
	mu          sync.Mutex
	conn        net.Conn
	nextEventID uint64
	disabled    bool
}

// NewNoOpTelemetryClient creates a disabled telemetry client that does nothing
func NewNoOpTelemetryClient() *TelemetryClient {
	return &TelemetryClient{disabled: true}
}

// NewTelemetryClient builds a client for addr ("host:port").
func NewTelemetryClient(addr string) *TelemetryClient {
	return &TelemetryClient{addr: addr}
}

// Enabled reports whether events are sent anywhere.
func (c *TelemetryClient) Enabled() bool {
	return !c.disabled
}

// Connect dials the sink and sends the client information message.
func (c *TelemetryClient) Connect(info ClientInfo) error {
	if c.disabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("telemetry client already connected to %s", c.addr)
	}
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to telemetry server at %s: %w", c.addr, err)
	}
	msg := []byte{protocolVersion}
	msg = append(msg, encodeString(info.Name, 32)...)
	msg = append(msg, encodeString(info.Version, 32)...)
	if err := writeFrame(conn, msg); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send client info: %w", err)
	}
	c.conn = conn
	return nil
}

// Close terminates the connection.
func (c *TelemetryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *TelemetryClient) eventID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextEventID
	c.nextEventID++
	return id
}

// RunStarted announces a run and returns the event id that later events
// for the same run refer to.
func (c *TelemetryClient) RunStarted(runID uuid.UUID, image common.Hash, budget uint32) uint64 {
	if c.disabled {
		return 0
	}
	id := c.eventID()
	payload := common.Uint64ToBytes(id)
	payload = append(payload, runID[:]...)
	payload = append(payload, image.Bytes()...)
	payload = append(payload, common.Uint32ToBytes(budget)...)
	log.Telemetry(RunStarted, runID.String(), map[string]interface{}{"event": id, "image": image.Hex(), "budget": budget})
	c.sendEvent(RunStarted, payload)
	return id
}

// RunFinished reports a run that ended with code 0 or a hook halt.
func (c *TelemetryClient) RunFinished(runID uuid.UUID, started uint64, code int32, ticks uint32, elapsed time.Duration) {
	if c.disabled {
		return
	}
	payload := common.Uint64ToBytes(started)
	payload = append(payload, common.Uint32ToBytes(uint32(code))...)
	payload = append(payload, common.Uint32ToBytes(ticks)...)
	log.Telemetry(RunFinished, runID.String(), map[string]interface{}{"event": started, "code": code, "ticks": ticks}, "elapsed", uint32(elapsed.Microseconds()))
	c.sendEvent(RunFinished, payload)
}

// RunFaulted reports a machine failure.
func (c *TelemetryClient) RunFaulted(runID uuid.UUID, started uint64, code int32, pc int, ticks uint32, reason string) {
	if c.disabled {
		return
	}
	payload := common.Uint64ToBytes(started)
	payload = append(payload, common.Uint32ToBytes(uint32(code))...)
	payload = append(payload, common.Uint32ToBytes(uint32(pc))...)
	payload = append(payload, common.Uint32ToBytes(ticks)...)
	payload = append(payload, encodeString(reason, 128)...)
	log.Telemetry(RunFaulted, runID.String(), map[string]interface{}{"event": started, "code": code, "pc": pc, "ticks": ticks}, "metadata", reason)
	c.sendEvent(RunFaulted, payload)
}

// sendEvent frames timestamp, discriminator and payload. Write failures
// are logged and otherwise ignored.
func (c *TelemetryClient) sendEvent(discriminator byte, eventPayload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	message := common.Uint64ToBytes(uint64(time.Now().UnixMicro()))
	message = append(message, discriminator)
	message = append(message, eventPayload...)
	if err := writeFrame(c.conn, message); err != nil {
		log.Warn(log.TelemetryModule, "telemetry send failed", "addr", c.addr, "err", err)
	}
}

func writeFrame(conn net.Conn, msg []byte) error {
	if _, err := conn.Write(common.Uint32ToBytes(uint32(len(msg)))); err != nil {
		return err
	}
	_, err := conn.Write(msg)
	return err
}

// encodeString writes a one byte length and at most maxLen bytes of s.
func encodeString(s string, maxLen int) []byte {
	b := []byte(s)
	if len(b) > maxLen {
		b = b[:maxLen]
	}
	return append([]byte{byte(len(b))}, b...)
}
