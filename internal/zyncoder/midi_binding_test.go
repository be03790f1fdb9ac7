package zyncoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_MidiEventType_String(t *testing.T) {
	cases := []struct {
		in   MidiEventType
		want string
	}{
		{MidiNone, "none"},
		{MidiCtrlChange, "ctrl_change"},
		{MidiNoteOn, "note_on"},
		{MidiProgChange, "prog_change"},
		{MidiCVGateIn, "cvgate_in"},
		{MidiEventType(99), "unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.in.String())
	}
}
