package timecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	v, df, err := Parse("01:00:00:00")
	require.NoError(t, err)
	assert.Equal(t, Value{Hours: 1}, v)
	assert.False(t, df)

	v, df, err = Parse("23:59:59;29")
	require.NoError(t, err)
	assert.Equal(t, Value{Hours: 23, Minutes: 59, Seconds: 59, Frames: 29}, v)
	assert.True(t, df)

	for _, bad := range []string{"", "1:2:3", "24:00:00:00", "00:60:00:00", "00:00:00:30", "aa:bb:cc:dd", "00:00:00"} {
		_, _, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidTimecode, "input %q", bad)
	}
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "01:02:03:04", Value{Hours: 1, Minutes: 2, Seconds: 3, Frames: 4}.String())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Value{Hours: 23, Minutes: 59, Seconds: 59, Frames: 24}.Validate(Rate25.Spec()))
	assert.Error(t, Value{Frames: 25}.Validate(Rate25.Spec()))
	assert.Error(t, Value{Minutes: 1}.Validate(Rate30DropFrame.Spec()))
	assert.NoError(t, Value{Minutes: 1}.Validate(Rate30NonDrop.Spec()))
	assert.NoError(t, Value{Minutes: 10}.Validate(Rate30DropFrame.Spec()))
}

func TestPackUnpack(t *testing.T) {
	_, ok := Unpack(0)
	assert.False(t, ok)

	for _, v := range []Value{
		{},
		{Hours: 23, Minutes: 59, Seconds: 59, Frames: 29, Direction: Reverse},
		{Hours: 1, Minutes: 2, Seconds: 3, Frames: 4},
	} {
		got, ok := Unpack(v.Pack())
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
}
