package module

import "errors"

// Domain errors for the module package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, module.ErrModuleNotFound) {
//	    // respond 404
//	}
var (
	// ErrModuleNotFound is returned when no module matches an id or MAC.
	ErrModuleNotFound = errors.New("module: not found")

	// ErrModuleExists is returned when creating a module whose MAC is taken.
	ErrModuleExists = errors.New("module: already exists")

	// ErrInvalidModule is returned for a nil or structurally invalid module.
	ErrInvalidModule = errors.New("module: invalid")

	// ErrInvalidMAC is returned when a MAC is empty, too long, or unusable in a topic.
	ErrInvalidMAC = errors.New("module: invalid mac")

	// ErrInvalidType is returned when a module type is not numeric or arrow.
	ErrInvalidType = errors.New("module: invalid type")

	// ErrInvalidNumber is returned when a number is outside 0-99.
	ErrInvalidNumber = errors.New("module: number must be between 0 and 99")

	// ErrInvalidColor is returned when a colour is not #RRGGBB or "random".
	ErrInvalidColor = errors.New("module: invalid color")

	// ErrInvalidAnimation is returned when an animation name is too long.
	ErrInvalidAnimation = errors.New("module: invalid animation")

	// ErrInvalidPlace is returned when a place is too long.
	ErrInvalidPlace = errors.New("module: invalid place")
)

// IsValidationError reports whether err is a validation failure that should
// be shown to the user rather than treated as an internal error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidModule) ||
		errors.Is(err, ErrInvalidMAC) ||
		errors.Is(err, ErrInvalidType) ||
		errors.Is(err, ErrInvalidNumber) ||
		errors.Is(err, ErrInvalidColor) ||
		errors.Is(err, ErrInvalidAnimation) ||
		errors.Is(err, ErrInvalidPlace)
}
