package module

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestValidateMAC(t *testing.T) {
	tests := []struct {
		mac     string
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", false},
		{"aabbccddeeff", false},
		{"", true},
		{"AA:BB:CC:DD:EE:FF:00", true},
		{"AA/BB", true},
		{"AA+BB", true},
		{"AA#BB", true},
		{"AA BB", true},
	}
	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			err := ValidateMAC(tt.mac)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMAC)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNumber(t *testing.T) {
	assert.NoError(t, ValidateNumber(0))
	assert.NoError(t, ValidateNumber(99))
	assert.ErrorIs(t, ValidateNumber(-1), ErrInvalidNumber)
	assert.ErrorIs(t, ValidateNumber(100), ErrInvalidNumber)
}

func TestValidateColor(t *testing.T) {
	assert.NoError(t, ValidateColor("#ff0000"))
	assert.NoError(t, ValidateColor("#A1B2C3"))
	assert.NoError(t, ValidateColor(ColorRandom))
	assert.ErrorIs(t, ValidateColor("ff0000"), ErrInvalidColor)
	assert.ErrorIs(t, ValidateColor("#fff"), ErrInvalidColor)
	assert.ErrorIs(t, ValidateColor("#gg0000"), ErrInvalidColor)
}

func TestNew_Defaults(t *testing.T) {
	numeric := New("AA", TypeNumeric, testNow)
	assert.Equal(t, DefaultPlace, numeric.Place)
	assert.Equal(t, DefaultAnimation, numeric.Animation)
	assert.True(t, numeric.Online)
	assert.False(t, numeric.On)
	require.NotNil(t, numeric.Number)
	assert.Equal(t, 0, *numeric.Number)
	assert.Equal(t, *numeric.LastSeen, *numeric.LastUpdate)

	arrow := New("BB", TypeArrow, testNow)
	assert.Nil(t, arrow.Number)
}

func TestEdit_Apply(t *testing.T) {
	later := testNow.Add(time.Hour)

	tests := []struct {
		name    string
		module  *Module
		edit    Edit
		wantErr error
		check   func(t *testing.T, m *Module)
	}{
		{
			name:   "full edit of numeric module",
			module: New("AA", TypeNumeric, testNow),
			edit:   Edit{On: true, Color: "#ff0000", Animation: "blink", Number: intPtr(42), Place: "Lab 1"},
			check: func(t *testing.T, m *Module) {
				assert.True(t, m.On)
				assert.Equal(t, "#ff0000", m.Color)
				assert.Equal(t, "blink", m.Animation)
				assert.Equal(t, 42, *m.Number)
				assert.Equal(t, "Lab 1", m.Place)
				assert.True(t, m.LastUpdate.Equal(later))
				assert.True(t, m.LastSeen.Equal(testNow), "last_seen is not an edit field")
			},
		},
		{
			name:   "random color wins over color value",
			module: New("AA", TypeNumeric, testNow),
			edit:   Edit{Color: "#00ff00", ColorRandom: true},
			check: func(t *testing.T, m *Module) {
				assert.Equal(t, ColorRandom, m.Color)
			},
		},
		{
			name:   "empty color defaults to white",
			module: New("AA", TypeArrow, testNow),
			edit:   Edit{},
			check: func(t *testing.T, m *Module) {
				assert.Equal(t, DefaultColor, m.Color)
			},
		},
		{
			name:   "empty animation keeps current",
			module: New("AA", TypeArrow, testNow),
			edit:   Edit{Place: "Hall"},
			check: func(t *testing.T, m *Module) {
				assert.Equal(t, DefaultAnimation, m.Animation)
			},
		},
		{
			name:   "empty place clears place",
			module: New("AA", TypeArrow, testNow),
			edit:   Edit{},
			check: func(t *testing.T, m *Module) {
				assert.Equal(t, "", m.Place)
			},
		},
		{
			name:   "number ignored for arrow",
			module: New("AA", TypeArrow, testNow),
			edit:   Edit{Number: intPtr(150)},
			check: func(t *testing.T, m *Module) {
				assert.Nil(t, m.Number)
			},
		},
		{
			name:   "missing number keeps current",
			module: New("AA", TypeNumeric, testNow),
			edit:   Edit{},
			check: func(t *testing.T, m *Module) {
				assert.Equal(t, 0, *m.Number)
			},
		},
		{
			name:    "number 100 rejected",
			module:  New("AA", TypeNumeric, testNow),
			edit:    Edit{On: true, Number: intPtr(100), Place: "x"},
			wantErr: ErrInvalidNumber,
		},
		{
			name:    "number -1 rejected",
			module:  New("AA", TypeNumeric, testNow),
			edit:    Edit{Number: intPtr(-1)},
			wantErr: ErrInvalidNumber,
		},
		{
			name:    "bad color rejected",
			module:  New("AA", TypeNumeric, testNow),
			edit:    Edit{Color: "red"},
			wantErr: ErrInvalidColor,
		},
		{
			name:    "long place rejected",
			module:  New("AA", TypeNumeric, testNow),
			edit:    Edit{Place: strings.Repeat("p", maxPlaceLength+1)},
			wantErr: ErrInvalidPlace,
		},
		{
			name:    "long animation rejected",
			module:  New("AA", TypeNumeric, testNow),
			edit:    Edit{Animation: strings.Repeat("a", maxAnimationLength+1)},
			wantErr: ErrInvalidAnimation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.module.Clone()
			err := tt.edit.Apply(tt.module, later)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))
				assert.Equal(t, before, tt.module, "rejected edit must not mutate")
				return
			}
			require.NoError(t, err)
			tt.check(t, tt.module)
		})
	}
}

func TestModule_Clone(t *testing.T) {
	m := New("AA", TypeNumeric, testNow)
	c := m.Clone()
	*c.Number = 7
	c.LastSeen = nil
	assert.Equal(t, 0, *m.Number)
	assert.NotNil(t, m.LastSeen)
}
