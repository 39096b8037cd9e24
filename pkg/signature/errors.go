package signature

import "errors"

var (
	// ErrInputTooShort is returned when a buffer holds fewer samples than one
	// analysis window. No partial signature is ever produced.
	ErrInputTooShort = errors.New("signature: input shorter than one analysis window")

	// ErrUnsupportedSampleRate is returned for a sample rate outside the set
	// the wire format can express.
	ErrUnsupportedSampleRate = errors.New("signature: unsupported sample rate")

	// ErrCorruptSignature is returned by the decoder for any malformed blob.
	ErrCorruptSignature = errors.New("signature: corrupt signature")

	// ErrEncodingOverflow is returned by the encoder when a field does not fit
	// its wire width or a peak is filed under a band it does not belong to.
	ErrEncodingOverflow = errors.New("signature: field overflows wire width")
)
