package uart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_bitAt_extractsCorrectBit(t *testing.T) {
	payload := []byte{0b0000_0010, 0b0000_0001}
	assert.Equal(t, uint8(1), bitAt(payload, 1))
	assert.Equal(t, uint8(0), bitAt(payload, 0))
	assert.Equal(t, uint8(1), bitAt(payload, 8))
	assert.Equal(t, uint8(0), bitAt(payload, 9))
}

func Test_bitAt_outOfRangeIsZero(t *testing.T) {
	assert.Equal(t, uint8(0), bitAt([]byte{0xFF}, 100))
}

func Test_frameCorrupt_detectsReservedBytes(t *testing.T) {
	assert.False(t, frameCorrupt([]byte{0x01, 0x02}))
	assert.True(t, frameCorrupt([]byte{reservedByte, 0x00}))
	assert.True(t, frameCorrupt([]byte{0x00, startByte}))
	assert.True(t, frameCorrupt([]byte{endByte, 0x00}))
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   chan struct{}
	dirs    []dirCall
	levels  []levelCall
	pins    []pinCall
}

type dirCall struct {
	index int
	up    bool
}
type levelCall struct {
	index int
	level uint8
}
type pinCall struct {
	index int
	a, b  uint8
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{calls: make(chan struct{}, 16)}
}

func (d *fakeDispatcher) EncoderPins(index int, a, b uint8) {
	d.mu.Lock()
	d.pins = append(d.pins, pinCall{index, a, b})
	d.mu.Unlock()
	d.calls <- struct{}{}
}

func (d *fakeDispatcher) EncoderDirection(index int, up bool) {
	d.mu.Lock()
	d.dirs = append(d.dirs, dirCall{index, up})
	d.mu.Unlock()
	d.calls <- struct{}{}
}

func (d *fakeDispatcher) SwitchLevel(index int, level uint8) {
	d.mu.Lock()
	d.levels = append(d.levels, levelCall{index, level})
	d.mu.Unlock()
	d.calls <- struct{}{}
}

func (d *fakeDispatcher) waitForCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-d.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for dispatcher call %d/%d", i+1, n)
		}
	}
}

// Test_Transport_readLoop_decodesFrameFromRealPty drives the frame parser
// over an actual pseudo-terminal pair, the same harness the teacher uses
// for its KISS pseudo-TTY in kiss.go.
func Test_Transport_readLoop_decodesFrameFromRealPty(t *testing.T) {
	ptmx, pts, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer pts.Close()

	dispatcher := newFakeDispatcher()
	tp := New(Config{
		Device:   pts.Name(),
		Baud:     115200,
		Encoders: []EncoderBinding{{Index: 0, DownPin: 1, UpPin: 2}},
		Switches: []SwitchBinding{{Index: 0, Pin: 3}},
	}, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tp.Start(ctx))
	defer tp.Stop()

	// byte 0, bit 2 set (up tick on encoder 0), bit 3 set (switch 0 pressed).
	payload := []byte{0b0000_1100, 0b0000_0000}
	frame := append([]byte{startByte}, payload...)
	frame = append(frame, endByte)

	_, err = ptmx.Write(frame)
	require.NoError(t, err)

	dispatcher.waitForCalls(t, 2)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	require.Len(t, dispatcher.dirs, 1)
	assert.Equal(t, dirCall{0, true}, dispatcher.dirs[0])
	require.Len(t, dispatcher.levels, 1)
	assert.Equal(t, levelCall{0, 1}, dispatcher.levels[0])
}

func Test_Transport_readLoop_dropsCorruptFrame(t *testing.T) {
	ptmx, pts, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer pts.Close()

	dispatcher := newFakeDispatcher()
	tp := New(Config{
		Device:   pts.Name(),
		Baud:     115200,
		Encoders: []EncoderBinding{{Index: 0, DownPin: 1, UpPin: 2}},
	}, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tp.Start(ctx))
	defer tp.Stop()

	corrupt := []byte{startByte, reservedByte, 0x00, endByte}
	_, err = ptmx.Write(corrupt)
	require.NoError(t, err)

	// A corrupt frame flushes the device's input queue, so the good frame
	// is written only after the read loop has had time to do that.
	time.Sleep(100 * time.Millisecond)

	good := []byte{startByte, 0b0000_0100, 0x00, endByte}
	_, err = ptmx.Write(good)
	require.NoError(t, err)

	dispatcher.waitForCalls(t, 1)

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	require.Len(t, dispatcher.dirs, 1)
	assert.Equal(t, dirCall{0, true}, dispatcher.dirs[0])
}

func Test_Transport_Stop_unblocksReadLoop(t *testing.T) {
	ptmx, pts, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()

	tp := New(Config{Device: pts.Name(), Baud: 115200}, newFakeDispatcher())
	ctx := context.Background()
	require.NoError(t, tp.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- tp.Stop() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the read loop in time")
	}
	pts.Close()
}
