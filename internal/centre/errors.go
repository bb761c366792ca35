package centre

import "github.com/rotisserie/eris"

var (
	// ErrMalformedPayload means the dataset payload lacks the expected
	// data -> dataset -> records nesting. It aborts a normalization pass.
	ErrMalformedPayload = eris.New("centre: malformed payload")

	// ErrNotFound means no centre matched the requested identifier.
	ErrNotFound = eris.New("centre: not found")

	// ErrInvalidQueryPoint means a nearest query carried an out-of-range or
	// non-finite coordinate, or a negative distance.
	ErrInvalidQueryPoint = eris.New("centre: invalid query point")

	// ErrIndexUnavailable means the centres table or its spatial support is
	// missing, typically because migrations or a rebuild have not run.
	ErrIndexUnavailable = eris.New("centre: spatial index unavailable")
)
