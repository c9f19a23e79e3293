package nn

import "errors"

var (
	// ErrConfiguration reports an invalid layer configuration: a feature axis
	// that resolves to the batch axis or past the input rank, a group count
	// that does not divide the channels, or out-of-range hyperparameters.
	ErrConfiguration = errors.New("nn: invalid configuration")

	// ErrShapeMismatch reports an input whose rank or feature size differs
	// from the shape the layer was built against.
	ErrShapeMismatch = errors.New("nn: input shape mismatch")
)
