package telemetry

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/colorfulnotion/regwin/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTelemetryClientEvents(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	frames := make(chan [][]byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			frames <- nil
			return
		}
		defer conn.Close()
		var got [][]byte
		for i := 0; i < 3; i++ {
			var n [4]byte
			if _, err := io.ReadFull(conn, n[:]); err != nil {
				break
			}
			msg := make([]byte, binary.LittleEndian.Uint32(n[:]))
			if _, err := io.ReadFull(conn, msg); err != nil {
				break
			}
			got = append(got, msg)
		}
		frames <- got
	}()

	c := NewTelemetryClient(ln.Addr().String())
	require.NoError(t, c.Connect(ClientInfo{Name: "wvm", Version: "test"}))
	defer c.Close()

	runID := uuid.New()
	image := common.Blake2Hash([]byte("image"))
	id := c.RunStarted(runID, image, 4096)
	assert.Equal(t, uint64(0), id)
	c.RunFinished(runID, id, 0, 12, time.Millisecond)

	var got [][]byte
	select {
	case got = <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("no frames received")
	}
	require.Len(t, got, 3)

	hello := got[0]
	assert.Equal(t, byte(0), hello[0])
	assert.Equal(t, []byte{3, 'w', 'v', 'm'}, hello[1:5])

	started := got[1]
	assert.Equal(t, RunStarted, started[8])
	payload := started[9:]
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(payload[:8]))
	assert.Equal(t, runID[:], payload[8:24])
	assert.Equal(t, image.Bytes(), payload[24:56])
	assert.Equal(t, uint32(4096), binary.LittleEndian.Uint32(payload[56:60]))

	finished := got[2]
	assert.Equal(t, RunFinished, finished[8])
	assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(finished[9+12:9+16]))
}

func TestNoOpClient(t *testing.T) {
	c := NewNoOpTelemetryClient()
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Connect(ClientInfo{}))
	assert.Zero(t, c.RunStarted(uuid.New(), common.Hash{}, 1))
	c.RunFaulted(uuid.New(), 0, -3, 7, 1, "memory fault")
	assert.NoError(t, c.Close())
}

func TestUnconnectedClientDropsEvents(t *testing.T) {
	c := NewTelemetryClient("127.0.0.1:1")
	assert.True(t, c.Enabled())
	assert.Equal(t, uint64(0), c.RunStarted(uuid.New(), common.Hash{}, 1))
	assert.Equal(t, uint64(1), c.RunStarted(uuid.New(), common.Hash{}, 1))
}

func TestEncodeString(t *testing.T) {
	assert.Equal(t, []byte{2, 'o', 'k'}, encodeString("ok", 32))
	assert.Equal(t, []byte{2, 'a', 'b'}, encodeString("abc", 2))
}

func TestRunSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)

	_, span := StartRunSpan(context.Background(), "run-1", "0xabc", 100)
	EndRunSpan(span, -1, 100, errors.New("budget exhausted"))

	ended := sr.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "wvm.run", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Contains(t, s.Attributes(), attribute.String("wvm.run_id", "run-1"))
	assert.Contains(t, s.Attributes(), attribute.Int("wvm.halt_code", -1))
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "dev")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
