package sign

import "errors"

// Error kinds surfaced by the signing path. All of them are fatal to the
// signing call; no partial output is ever written.
var (
	// ErrReservationExceeded means the encoded signature did not fit in the
	// reserved /Contents placeholder. Callers may retry with a larger
	// explicit BytesReserved.
	ErrReservationExceeded = errors.New("signature exceeds reserved space")

	// ErrFieldConflict means the requested field name exists but is not a
	// signature field, or is a signature field that is already filled.
	ErrFieldConflict = errors.New("signature field conflict")

	// ErrNoEmptyField means no empty signature field could be found while
	// one was required.
	ErrNoEmptyField = errors.New("no empty signature field")

	// ErrAmbiguousField means more than one empty signature field exists
	// and no field name was given to pick one.
	ErrAmbiguousField = errors.New("ambiguous signature field")

	// ErrUnsupportedMechanism means the signer's signature mechanism is not
	// in the supported set.
	ErrUnsupportedMechanism = errors.New("unsupported signature mechanism")

	// ErrDocumentTooLarge means a byte offset did not fit the fixed-width
	// /ByteRange representation (files must stay below 10^8 bytes).
	ErrDocumentTooLarge = errors.New("document too large for byte range")

	// Timestamping failures.
	ErrTSARejected          = errors.New("timestamp request rejected")
	ErrTSAMalformedResponse = errors.New("malformed timestamp response")
	ErrTSANonceMismatch     = errors.New("timestamp nonce mismatch")
)
