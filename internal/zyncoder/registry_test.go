package zyncoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	encoderChanges []EncoderSnapshot
	switchEdges    []SwitchEdge
}

func (s *recordingSink) EncoderChanged(snap EncoderSnapshot) { s.encoderChanges = append(s.encoderChanges, snap) }
func (s *recordingSink) SwitchEdgeEmitted(edge SwitchEdge)   { s.switchEdges = append(s.switchEdges, edge) }

func Test_NewRegistry_appliesDefaultsForZeroConfig(t *testing.T) {
	r := NewRegistry(Config{})
	assert.Equal(t, DefaultMaxNumEncoders, r.NumEncoders())
	assert.Equal(t, DefaultMaxNumSwitches, r.NumSwitches())
	assert.Equal(t, uint32(DefaultTicksPerRetent), r.TicksPerRetent())
}

func Test_Registry_SetupEncoder_outOfBounds(t *testing.T) {
	r := NewRegistry(Config{NumEncoders: 2})
	err := r.SetupEncoder(5, 1, 2, 0, 1, "", 0, 127, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func Test_Registry_GetValueEncoder_disabledReturnsErrDisabled(t *testing.T) {
	r := NewRegistry(Config{NumEncoders: 2})
	_, err := r.GetValueEncoder(0)
	assert.ErrorIs(t, err, ErrDisabled)
}

func Test_Registry_UpdateEncoderPins_emitsThroughSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(Config{NumEncoders: 1, TicksPerRetent: 4, Clock: NewFakeClock(1000)})
	r.SetSink(sink)
	require.NoError(t, r.SetupEncoder(0, 1, 2, 0, 5, "", 0, 127, 1))

	require.NoError(t, r.UpdateEncoderPins(0, 1, 0)) // valid up transition from lastEncoded=0

	require.Len(t, sink.encoderChanges, 1)
	assert.Equal(t, 0, sink.encoderChanges[0].Index)
	assert.Equal(t, uint32(1), sink.encoderChanges[0].Value)
}

func Test_Registry_UpdateSwitchLevel_emitsThroughSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(Config{NumSwitches: 1, Clock: NewFakeClock(1000)})
	r.SetSink(sink)
	require.NoError(t, r.SetupSwitch(0, 5, 0))
	require.NoError(t, r.SetupSwitchMidi(0, SwitchMidiBinding{Type: MidiNoteOn, Chan: 1, Num: 64, Val: 100}))

	require.NoError(t, r.UpdateSwitchLevel(0, 0)) // press, active-low

	require.Len(t, sink.switchEdges, 1)
	assert.True(t, sink.switchEdges[0].IsPress)
}

func Test_Registry_RehydrateEncoders_neverCallsSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(Config{NumEncoders: 2, TicksPerRetent: 4})
	r.SetSink(sink)
	require.NoError(t, r.SetupEncoder(0, 1, 2, 3, 9, "", 0, 127, 1))
	require.NoError(t, r.SetupEncoder(1, 3, 4, 3, 9, "", 0, 127, 1))

	r.RehydrateEncoders(3, 9, 42)

	assert.Empty(t, sink.encoderChanges, "rehydration must never reach the outbound sink")
	v0, err := r.GetValueEncoder(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v0)
	v1, err := r.GetValueEncoder(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v1)
}

func Test_Registry_ParseOscBinding(t *testing.T) {
	b, err := ParseOscBinding("9000:/enc/0")
	require.NoError(t, err)
	assert.Equal(t, uint16(9000), b.Port)
	assert.Equal(t, "/enc/0", b.Path)

	empty, err := ParseOscBinding("")
	require.NoError(t, err)
	assert.Equal(t, OscBinding{}, empty)

	_, err = ParseOscBinding("not-valid")
	assert.Error(t, err)
}

func Test_Registry_EncoderPins_reflectsConfiguredBindings(t *testing.T) {
	r := NewRegistry(Config{NumEncoders: 2})
	require.NoError(t, r.SetupEncoder(0, 11, 12, 0, 0, "", 0, 127, 1))

	pins := r.EncoderPins()
	require.Len(t, pins, 2)
	assert.True(t, pins[0].Enabled)
	assert.Equal(t, 11, pins[0].PinA)
	assert.Equal(t, 12, pins[0].PinB)
	assert.False(t, pins[1].Enabled)
}

func Test_Registry_SetEncoderLastPinState_outOfBounds(t *testing.T) {
	r := NewRegistry(Config{NumEncoders: 1})
	assert.ErrorIs(t, r.SetEncoderLastPinState(9, 1, 0), ErrOutOfBounds)
}

func Test_Registry_SwitchPins_reflectsConfiguredBindings(t *testing.T) {
	r := NewRegistry(Config{NumSwitches: 2})
	require.NoError(t, r.SetupSwitch(1, 7, 0))

	pins := r.SwitchPins()
	require.Len(t, pins, 2)
	assert.False(t, pins[0].Enabled)
	assert.True(t, pins[1].Enabled)
	assert.Equal(t, 7, pins[1].Pin)
}

func Test_Registry_SetValueEncoder_sendFlagControlsEmission(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(Config{NumEncoders: 1, TicksPerRetent: 4})
	r.SetSink(sink)
	require.NoError(t, r.SetupEncoder(0, 1, 2, 0, 0, "", 0, 127, 1))

	require.NoError(t, r.SetValueEncoder(0, 50, false))
	assert.Empty(t, sink.encoderChanges)

	require.NoError(t, r.SetValueEncoder(0, 60, true))
	require.Len(t, sink.encoderChanges, 1)
	assert.Equal(t, uint32(60), sink.encoderChanges[0].Value)
}
