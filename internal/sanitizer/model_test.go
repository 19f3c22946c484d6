package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeScan, false},
		{"scan", ModeScan, false},
		{" Clean ", ModeClean, false},
		{"DELETE", ModeDelete, false},
		{"purge", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMode(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestModeStrategy(t *testing.T) {
	s, ok := ModeClean.Strategy()
	assert.True(t, ok)
	assert.Equal(t, StrategyRedact, s)

	s, ok = ModeDelete.Strategy()
	assert.True(t, ok)
	assert.Equal(t, StrategySoftDelete, s)

	_, ok = ModeScan.Strategy()
	assert.False(t, ok)
	assert.False(t, ModeScan.Destructive())
}

func TestCheckConfirmation(t *testing.T) {
	assert.NoError(t, CheckConfirmation(ModeScan, false, false))
	assert.NoError(t, CheckConfirmation(ModeClean, true, false), "dry run needs no confirmation")
	assert.NoError(t, CheckConfirmation(ModeDelete, false, true))
	assert.ErrorIs(t, CheckConfirmation(ModeDelete, false, false), ErrConfirmationRequired)
	assert.ErrorIs(t, CheckConfirmation(ModeClean, false, false), ErrConfirmationRequired)
}

func TestStrategyValid(t *testing.T) {
	assert.True(t, StrategyRedact.Valid())
	assert.True(t, StrategySoftDelete.Valid())
	assert.False(t, Strategy("hard_delete").Valid())
}
