package telemetry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/colorfulnotion/regwin/common"
	"github.com/colorfulnotion/regwin/log"
	"github.com/google/uuid"
)

// maxFrame bounds a single message read from a client.
const maxFrame = 1 << 16

// Event is one decoded run event. Fields not carried by Kind are zero.
type Event struct {
	Time    time.Time
	Kind    byte
	EventID uint64 // the RunStarted event this refers to, or its own id
	RunID   uuid.UUID
	Image   common.Hash
	Budget  uint32
	Code    int32
	PC      uint32
	Ticks   uint32
	Reason  string
}

// DecodeEvent parses the content of an event frame.
func DecodeEvent(msg []byte) (*Event, error) {
	if len(msg) < 9 {
		return nil, fmt.Errorf("event frame too short: %d bytes", len(msg))
	}
	ev := &Event{
		Time: time.UnixMicro(int64(binary.LittleEndian.Uint64(msg))),
		Kind: msg[8],
	}
	p := msg[9:]
	need := func(n int) error {
		if len(p) < n {
			return fmt.Errorf("event %d: payload %d bytes, want %d", ev.Kind, len(p), n)
		}
		return nil
	}
	switch ev.Kind {
	case RunStarted:
		if err := need(60); err != nil {
			return nil, err
		}
		ev.EventID = binary.LittleEndian.Uint64(p)
		copy(ev.RunID[:], p[8:24])
		ev.Image = common.BytesToHash(p[24:56])
		ev.Budget = common.BytesToUint32(p[56:60])
	case RunFinished:
		if err := need(16); err != nil {
			return nil, err
		}
		ev.EventID = binary.LittleEndian.Uint64(p)
		ev.Code = int32(common.BytesToUint32(p[8:]))
		ev.Ticks = common.BytesToUint32(p[12:])
	case RunFaulted:
		if err := need(21); err != nil {
			return nil, err
		}
		ev.EventID = binary.LittleEndian.Uint64(p)
		ev.Code = int32(common.BytesToUint32(p[8:]))
		ev.PC = common.BytesToUint32(p[12:])
		ev.Ticks = common.BytesToUint32(p[16:])
		reason, err := decodeString(p[20:])
		if err != nil {
			return nil, err
		}
		ev.Reason = reason
	default:
		return nil, fmt.Errorf("unknown event discriminator %d", ev.Kind)
	}
	return ev, nil
}

func decodeClientInfo(msg []byte) (ClientInfo, error) {
	if len(msg) < 1 || msg[0] != protocolVersion {
		return ClientInfo{}, errors.New("unsupported telemetry protocol")
	}
	name, err := decodeString(msg[1:])
	if err != nil {
		return ClientInfo{}, err
	}
	version, err := decodeString(msg[2+len(name):])
	if err != nil {
		return ClientInfo{}, err
	}
	return ClientInfo{Name: name, Version: version}, nil
}

func decodeString(b []byte) (string, error) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return "", errors.New("truncated string")
	}
	return string(b[1 : 1+int(b[0])]), nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(n[:])
	if size > maxFrame {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", size, maxFrame)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// TelemetryServer accepts TelemetryClient connections and hands every
// decoded event to Handle.
type TelemetryServer struct {
	Addr   string
	Handle func(info ClientInfo, ev *Event)

	mu sync.Mutex
	ln net.Listener
}

func NewTelemetryServer(addr string, handle func(ClientInfo, *Event)) *TelemetryServer {
	return &TelemetryServer{Addr: addr, Handle: handle}
}

// Listen binds Addr. It is called by Serve when needed; calling it first
// lets the caller learn the bound address.
func (s *TelemetryServer) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", s.Addr, err)
		}
		s.ln = ln
	}
	return s.ln.Addr(), nil
}

// Serve accepts connections until ctx is cancelled.
func (s *TelemetryServer) Serve(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	log.Info(log.TelemetryModule, "telemetry server listening", "addr", addr.String())
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn(log.TelemetryModule, "accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *TelemetryServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	remote := conn.RemoteAddr().String()
	msg, err := readFrame(conn)
	if err != nil {
		return
	}
	info, err := decodeClientInfo(msg)
	if err != nil {
		log.Warn(log.TelemetryModule, "bad client info", "remote", remote, "err", err)
		return
	}
	log.Debug(log.TelemetryModule, "client connected", "remote", remote, "name", info.Name, "version", info.Version)
	for {
		msg, err := readFrame(conn)
		if err != nil {
			log.Debug(log.TelemetryModule, "connection closed", "remote", remote)
			return
		}
		ev, err := DecodeEvent(msg)
		if err != nil {
			log.Warn(log.TelemetryModule, "bad event", "remote", remote, "err", err)
			continue
		}
		if s.Handle != nil {
			s.Handle(info, ev)
		}
	}
}
