package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrValidation) {
//	    // respond 400
//	}
var (
	// ErrValidation is returned when a command value is rejected before publishing.
	ErrValidation = errors.New("device: invalid command value")

	// ErrPublish is returned when a command could not be handed to the transport.
	ErrPublish = errors.New("device: publish failed")

	// ErrParse is returned when an inbound transport payload cannot be applied.
	ErrParse = errors.New("device: invalid transport payload")
)
