package module

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Validation constants, sized to the columns the firmware and UI expect.
const (
	maxMACLength       = 17 // XX:XX:XX:XX:XX:XX
	maxAnimationLength = 20
	maxPlaceLength     = 100
)

var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateMAC checks that mac can key a module and form a publish topic.
func ValidateMAC(mac string) error {
	if mac == "" {
		return fmt.Errorf("%w: required", ErrInvalidMAC)
	}
	if len(mac) > maxMACLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidMAC, maxMACLength)
	}
	// The MAC becomes the last level of on_module_update/<mac>.
	if strings.ContainsAny(mac, "/+#") {
		return fmt.Errorf("%w: contains MQTT topic characters", ErrInvalidMAC)
	}
	for _, r := range mac {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace", ErrInvalidMAC)
		}
	}
	return nil
}

// ValidateType checks that t is numeric or arrow.
func ValidateType(t Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
	return nil
}

// ValidateNumber checks that n lies in [MinNumber, MaxNumber].
func ValidateNumber(n int) error {
	if n < MinNumber || n > MaxNumber {
		return fmt.Errorf("%w: got %d", ErrInvalidNumber, n)
	}
	return nil
}

// ValidateColor accepts "#RRGGBB" or ColorRandom.
func ValidateColor(c string) error {
	if c == ColorRandom || colorRegex.MatchString(c) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidColor, c)
}

// ValidateModule checks a module before it is written.
func ValidateModule(m *Module) error {
	if m == nil {
		return ErrInvalidModule
	}
	if err := ValidateMAC(m.MAC); err != nil {
		return err
	}
	if err := ValidateType(m.Type); err != nil {
		return err
	}
	if m.Number != nil {
		if err := ValidateNumber(*m.Number); err != nil {
			return err
		}
	}
	if m.Color != "" {
		if err := ValidateColor(m.Color); err != nil {
			return err
		}
	}
	if len(m.Animation) > maxAnimationLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAnimation, maxAnimationLength)
	}
	if len(m.Place) > maxPlaceLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidPlace, maxPlaceLength)
	}
	return nil
}

// Edit is a staff change to a module's configuration.
type Edit struct {
	// On is the desired power state.
	On bool

	// Color is "#RRGGBB". Empty means DefaultColor. Ignored when ColorRandom is set.
	Color string

	// ColorRandom stores ColorRandom instead of Color.
	ColorRandom bool

	// Animation replaces the current animation only when non-empty.
	Animation string

	// Number is applied to numeric modules only, and only when non-nil.
	Number *int

	// Place always replaces the current place.
	Place string
}

// Apply validates the edit against m and, if valid, writes it into m and
// stamps LastUpdate. On error m is left untouched.
func (e Edit) Apply(m *Module, now time.Time) error {
	if m == nil {
		return ErrInvalidModule
	}

	color := e.Color
	switch {
	case e.ColorRandom:
		color = ColorRandom
	case color == "":
		color = DefaultColor
	}
	if err := ValidateColor(color); err != nil {
		return err
	}

	if len(e.Animation) > maxAnimationLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidAnimation, maxAnimationLength)
	}

	applyNumber := m.IsNumeric() && e.Number != nil
	if applyNumber {
		if err := ValidateNumber(*e.Number); err != nil {
			return err
		}
	}

	if len(e.Place) > maxPlaceLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidPlace, maxPlaceLength)
	}

	m.On = e.On
	m.Color = color
	if e.Animation != "" {
		m.Animation = e.Animation
	}
	if applyNumber {
		n := *e.Number
		m.Number = &n
	}
	m.Place = e.Place

	stamp := now.UTC()
	m.LastUpdate = &stamp
	return nil
}
