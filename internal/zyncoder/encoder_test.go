package zyncoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestEncoder(ticksPerRetent uint32, maxValue, step uint32) *Encoder {
	e := &Encoder{}
	e.configure(1, 2, 0, 1, OscBinding{}, 0, maxValue, step, ticksPerRetent)
	return e
}

// feedPinTick applies one valid up-direction quadrature transition, valid
// when the encoder is in its post-configure lastEncoded==0 state.
func feedPinTick(e *Encoder, nowUs uint64, ticksPerRetent uint32) (bool, EncoderSnapshot) {
	return e.applyPins(1, 0, nowUs, ticksPerRetent) // encoded=0b10, sum=0b0010: up
}

func Test_classify_quadratureTables(t *testing.T) {
	assert.Equal(t, dirUp, classify(0b00, 0b10))
	assert.Equal(t, dirDown, classify(0b00, 0b01))
	assert.Equal(t, dirNone, classify(0b00, 0b00))
	assert.Equal(t, dirNone, classify(0b01, 0b10))
}

func Test_Encoder_fixedStep_advancesAndSaturates(t *testing.T) {
	e := newTestEncoder(4, 10, 2)

	changed, snap := feedPinTick(e, 10_000, 4)
	require.True(t, changed)
	assert.Equal(t, uint32(2), snap.Value)

	// Drive it well past max; it should clamp rather than wrap. Each
	// applyDirection call is one accepted tick, well spaced past debounce.
	now := uint64(100_000)
	for i := 0; i < 20; i++ {
		e.applyDirection(true, now, 4)
		now += 10_000
	}
	v, ok := e.getValue()
	require.True(t, ok)
	assert.Equal(t, uint32(10), v)
}

func Test_Encoder_fixedStep_downSaturatesAtZero(t *testing.T) {
	e := newTestEncoder(4, 10, 3)
	e.setValue(1, 4)

	changed, snap := e.applyDirection(false, 10_000, 4)
	require.True(t, changed)
	assert.Equal(t, uint32(0), snap.Value)
}

func Test_Encoder_debounce_dropsFastRepeat(t *testing.T) {
	e := newTestEncoder(4, 100, 1)

	changed, _ := e.applyDirection(true, 10_000, 4)
	require.True(t, changed)

	// 500us later: inside the 1000us debounce window, must be dropped.
	changed, _ = e.applyDirection(true, 10_500, 4)
	assert.False(t, changed)

	v, _ := e.getValue()
	assert.Equal(t, uint32(1), v)
}

func Test_Encoder_velocityMode_fastTicksAdvanceFurther(t *testing.T) {
	slow := newTestEncoder(4, 1000, 0)
	fast := newTestEncoder(4, 1000, 0)

	now := uint64(10_000)
	for i := 0; i < 6; i++ {
		slow.applyDirection(true, now, 4)
		now += 50_000 // slow cadence
	}

	now = 10_000
	for i := 0; i < 6; i++ {
		fast.applyDirection(true, now, 4)
		now += 2_000 // fast cadence
	}

	slowV, _ := slow.getValue()
	fastV, _ := fast.getValue()
	assert.Greater(t, fastV, slowV, "faster ticks should accumulate value quicker in velocity mode")
}

func Test_Encoder_velocityMode_respectsMaxValue(t *testing.T) {
	e := newTestEncoder(4, 5, 0)
	now := uint64(10_000)
	for i := 0; i < 200; i++ {
		e.applyDirection(true, now, 4)
		now += 1_000
	}
	v, _ := e.getValue()
	assert.LessOrEqual(t, v, uint32(5))
}

func Test_Encoder_rehydrateFromMidi_setsValueWithoutSnapshot(t *testing.T) {
	e := newTestEncoder(4, 127, 0)
	e.rehydrateFromMidi(64, 4)

	v, ok := e.getValue()
	require.True(t, ok)
	assert.Equal(t, uint32(64), v)
}

func Test_Encoder_matchesMidi_requiresNonZeroCtrl(t *testing.T) {
	e := &Encoder{}
	e.configure(1, 2, 5, 0, OscBinding{}, 0, 127, 0, 4)
	assert.False(t, e.matchesMidi(5, 0), "ctrl 0 means unbound, must never match")

	e.configure(1, 2, 5, 7, OscBinding{}, 0, 127, 0, 4)
	assert.True(t, e.matchesMidi(5, 7))
	assert.False(t, e.matchesMidi(5, 8))
}

func Test_Encoder_configure_resetsTimingOnlyWhenPinsChange(t *testing.T) {
	e := newTestEncoder(4, 100, 1)
	e.applyDirection(true, 10_000, 4)

	// Re-setup with identical pins: tsus-derived debounce state survives.
	e.configure(1, 2, 0, 1, OscBinding{}, 1, 100, 1, 4)
	changed, _ := e.applyDirection(true, 10_400, 4)
	assert.False(t, changed, "debounce window should still apply across a same-pin re-setup")

	// Re-setup with different pins: timing resets, next tick is accepted.
	e.configure(3, 4, 0, 1, OscBinding{}, 1, 100, 1, 4)
	changed, _ = e.applyDirection(true, 10_450, 4)
	assert.True(t, changed, "changed pins must reset debounce timing")
}

func Test_Encoder_setValue_clampsToMaxValue(t *testing.T) {
	e := newTestEncoder(4, 10, 1)
	changed, snap := e.setValue(999, 4)
	require.True(t, changed)
	assert.Equal(t, uint32(10), snap.Value)
}

// Quadrature symmetry law: any sequence of up-ticks followed by the exact
// reverse sequence of down-ticks returns the encoder to its starting value,
// in fixed-step mode where the arithmetic is exact.
func Test_Law_quadratureSymmetry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(t, "n")
		e := newTestEncoder(4, 1000, 1)
		e.setValue(500, 4)
		start, _ := e.getValue()

		now := uint64(10_000)
		for i := 0; i < n; i++ {
			e.applyDirection(true, now, 4)
			now += 5000
		}
		for i := 0; i < n; i++ {
			e.applyDirection(false, now, 4)
			now += 5000
		}
		end, _ := e.getValue()
		assert.Equal(t, start, end)
	})
}

// Saturation law: fixed-step value never exceeds [0, maxValue] regardless
// of how many ticks of either direction are fed in.
func Test_Law_fixedStepSaturationBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxValue := rapid.Uint32Range(1, 200).Draw(t, "maxValue")
		step := rapid.Uint32Range(1, 7).Draw(t, "step")
		e := newTestEncoder(4, maxValue, step)

		now := uint64(10_000)
		ups := rapid.IntRange(0, 100).Draw(t, "ups")
		for i := 0; i < ups; i++ {
			e.applyDirection(true, now, 4)
			now += 5000
		}
		v, _ := e.getValue()
		assert.LessOrEqual(t, v, maxValue)

		downs := rapid.IntRange(0, 200).Draw(t, "downs")
		for i := 0; i < downs; i++ {
			e.applyDirection(false, now, 4)
			now += 5000
		}
		v, _ = e.getValue()
		assert.LessOrEqual(t, v, maxValue)
	})
}

// Idempotence law: feeding the same (a,b) pair twice in a row never
// produces a second change, since it is not a valid quadrature transition.
func Test_Law_repeatedPinStateIsNoop(t *testing.T) {
	e := newTestEncoder(4, 100, 1)
	changed, _ := e.applyPins(1, 0, 10_000, 4)
	require.True(t, changed)

	changed, _ = e.applyPins(1, 0, 20_000, 4)
	assert.False(t, changed, "repeating the same pin state is not a quadrature transition")
}
