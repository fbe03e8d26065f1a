// Package lvmerr defines the error taxonomy returned by every layer of
// this library, from label scanning through the logical-volume read path.
package lvmerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for these; wrapped errors carry
// additional context via %w.
var (
	// ErrNoSignature means the candidate source carries no LABELONE
	// signature in its first LabelScanSectors sectors.
	ErrNoSignature = errors.New("lvm2: no LABELONE signature found")

	// ErrCorruptedLabel means a label was found but failed structural or
	// checksum validation.
	ErrCorruptedLabel = errors.New("lvm2: corrupted label")

	// ErrCorruptedMetadataHeader means the mda_header failed structural
	// or checksum validation.
	ErrCorruptedMetadataHeader = errors.New("lvm2: corrupted metadata area header")

	// ErrCorruptedMetadataText means the raw-location text failed its
	// checksum.
	ErrCorruptedMetadataText = errors.New("lvm2: corrupted metadata text")

	// ErrUnsupportedSegmentType means a logical volume segment declared a
	// type other than linear or striped.
	ErrUnsupportedSegmentType = errors.New("lvm2: unsupported segment type")

	// ErrInconsistent means a tiling, alignment, or cross-reference
	// invariant was violated while building the volume group.
	ErrInconsistent = errors.New("lvm2: inconsistent volume group metadata")

	// ErrPhysicalVolumeMissing means a logical-volume read required a
	// physical volume that was never attached to the handle.
	ErrPhysicalVolumeMissing = errors.New("lvm2: physical volume not attached")

	// ErrOutOfRange means a computed read or seek offset fell outside the
	// declared bounds of the target physical volume.
	ErrOutOfRange = errors.New("lvm2: offset out of range")

	// ErrInvalidArgument means the caller passed a nonsensical argument
	// (e.g. a negative seek result).
	ErrInvalidArgument = errors.New("lvm2: invalid argument")

	// ErrInvalidState means the operation isn't valid for the handle's
	// current lifecycle state.
	ErrInvalidState = errors.New("lvm2: invalid handle state")

	// ErrAbortRequested means signal_abort was observed mid-operation.
	ErrAbortRequested = errors.New("lvm2: abort requested")

	// ErrIO wraps a failure from an underlying byte reader. The original
	// error's message is included in the wrapping error's text; the
	// original error value itself is not wrapped.
	ErrIO = errors.New("lvm2: underlying I/O error")
)

// MalformedMetadataError reports a syntax error in the textual metadata
// language, with the 1-based line and column at which the error was
// detected. It wraps no sentinel; match it with errors.As.
type MalformedMetadataError struct {
	Line int
	Col  int
	Msg  string
}

func (e *MalformedMetadataError) Error() string {
	return fmt.Sprintf("lvm2: malformed metadata at line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

// PhysicalVolumeMissingError carries the UUID of the unattached physical
// volume alongside ErrPhysicalVolumeMissing.
type PhysicalVolumeMissingError struct {
	UUID string
}

func (e *PhysicalVolumeMissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPhysicalVolumeMissing.Error(), e.UUID)
}

func (e *PhysicalVolumeMissingError) Unwrap() error {
	return ErrPhysicalVolumeMissing
}
