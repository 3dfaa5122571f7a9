package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/colorfulnotion/regwin/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDecodesClientEvents(t *testing.T) {
	events := make(chan *Event, 8)
	var client ClientInfo
	srv := NewTelemetryServer("127.0.0.1:0", func(info ClientInfo, ev *Event) {
		client = info
		events <- ev
	})
	addr, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	c := NewTelemetryClient(addr.String())
	require.NoError(t, c.Connect(ClientInfo{Name: "wvm", Version: "1.2"}))

	runID := uuid.New()
	image := common.Blake2Hash([]byte("image"))
	id := c.RunStarted(runID, image, 500)
	c.RunFaulted(runID, id, -3, 17, 42, "memory fault")
	c.RunFinished(runID, id, 7, 9, time.Millisecond)

	var got []*Event
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of 3 events", len(got))
		}
	}
	require.NoError(t, c.Close())

	assert.Equal(t, ClientInfo{Name: "wvm", Version: "1.2"}, client)

	assert.Equal(t, RunStarted, got[0].Kind)
	assert.Equal(t, runID, got[0].RunID)
	assert.Equal(t, image, got[0].Image)
	assert.Equal(t, uint32(500), got[0].Budget)

	assert.Equal(t, RunFaulted, got[1].Kind)
	assert.Equal(t, id, got[1].EventID)
	assert.Equal(t, int32(-3), got[1].Code)
	assert.Equal(t, uint32(17), got[1].PC)
	assert.Equal(t, uint32(42), got[1].Ticks)
	assert.Equal(t, "memory fault", got[1].Reason)

	assert.Equal(t, RunFinished, got[2].Kind)
	assert.Equal(t, int32(7), got[2].Code)
	assert.Equal(t, uint32(9), got[2].Ticks)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent([]byte{1, 2, 3})
	assert.Error(t, err)

	msg := append(common.Uint64ToBytes(0), 99)
	_, err = DecodeEvent(msg)
	assert.ErrorContains(t, err, "unknown event")

	msg = append(common.Uint64ToBytes(0), RunStarted, 1, 2)
	_, err = DecodeEvent(msg)
	assert.Error(t, err)
}

func TestDecodeClientInfo(t *testing.T) {
	msg := append([]byte{protocolVersion}, encodeString("wvm", 32)...)
	msg = append(msg, encodeString("dev", 32)...)
	info, err := decodeClientInfo(msg)
	require.NoError(t, err)
	assert.Equal(t, ClientInfo{Name: "wvm", Version: "dev"}, info)

	_, err = decodeClientInfo([]byte{9})
	assert.Error(t, err)
}
