// Package lvm2 is the root facade of this library: it drives the label
// scanner, PV-header parser, metadata-area parser, and textual-metadata
// parser (pkg/label, pkg/pvheader, pkg/mda, pkg/metadata, pkg/vg) to build
// a VolumeGroup from a descriptor physical volume, then lets callers
// attach the remaining physical volumes and read logical volumes as a
// linear byte stream (spec §4.6).
package lvm2

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/bgrewell/lvm2-kit/pkg/label"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
	"github.com/bgrewell/lvm2-kit/pkg/mda"
	"github.com/bgrewell/lvm2-kit/pkg/metadata"
	"github.com/bgrewell/lvm2-kit/pkg/option"
	"github.com/bgrewell/lvm2-kit/pkg/pvheader"
	"github.com/bgrewell/lvm2-kit/pkg/vg"
)

// state is the Handle lifecycle state machine of spec §4.6.
type state int

const (
	stateFresh state = iota
	stateDescriptorOpen
	stateVolumesAttached
	stateClosed
)

// Handle owns one volume group and the byte readers attached to its
// physical volumes. All mutating operations on a Handle must be
// serialized by the caller; Handle holds no internal lock (spec §5).
type Handle struct {
	state state
	opts  *option.OpenOptions

	vg      *vg.VolumeGroup
	readers map[string]io.ReaderAt // PV UUID -> byte reader

	abort int32 // atomic flag set by SignalAbort, polled by reads
}

// Probe reports whether source carries an LVM2 label in its first few
// sectors, without any further validation (spec §6, §8-P7).
func Probe(source io.ReaderAt) (bool, error) {
	return label.Probe(source)
}

// Open builds a VolumeGroup from descriptorSource alone (spec §4.1-§4.5)
// and returns a Handle in the DescriptorOpen state. No logical volume can
// be read until AttachPhysicalVolumes has run.
func Open(descriptorSource io.ReaderAt, opts ...option.OpenOption) (*Handle, error) {
	o := option.NewOpenOptions(opts...)

	h := &Handle{state: stateFresh, opts: o, readers: map[string]io.ReaderAt{}}

	scanned, err := label.ScanWithOptions(descriptorSource, o.MaxLabelSectors, o.StrictChecksums, o.Logger)
	if err != nil {
		return nil, err
	}

	pvHeaderAt := scanned.Offset + int64(scanned.Header.DataOffset)
	pvh, err := pvheader.Parse(descriptorSource, pvHeaderAt)
	if err != nil {
		return nil, err
	}
	if len(pvh.MetadataAreas) == 0 {
		return nil, fmt.Errorf("%w: physical volume declares no metadata areas", lvmerr.ErrCorruptedLabel)
	}

	text, err := h.readMetadataText(descriptorSource, pvh)
	if err != nil {
		return nil, err
	}

	root, err := metadata.Parse(text,
		metadata.WithMaxDepth(o.MaxNestingDepth),
		metadata.WithAbortPoll(h.abortRequested),
	)
	if err != nil {
		return nil, err
	}

	built, err := vg.BuildWithLogger(root, o.Logger)
	if err != nil {
		return nil, err
	}

	h.vg = built
	h.state = stateDescriptorOpen
	if o.Logger != nil {
		o.Logger.Info("opened volume group", "name", built.Name, "uuid", built.UUID)
	}
	return h, nil
}

// readMetadataText tries each declared metadata area in order, returning
// the first one that parses and checksums cleanly. Real volume groups
// mirror their metadata across areas for redundancy; trying each gives
// Open a chance to recover from damage in a single copy.
func (h *Handle) readMetadataText(r io.ReaderAt, pvh *pvheader.Header) ([]byte, error) {
	var lastErr error
	for _, area := range pvh.MetadataAreas {
		hdr, err := mda.ParseWithOptions(r, int64(area.Offset), h.opts.StrictChecksums, h.opts.Logger)
		if err != nil {
			lastErr = err
			continue
		}
		loc, err := mda.SelectWithOptions(hdr, h.opts.Logger)
		if err != nil {
			lastErr = err
			continue
		}
		text, err := mda.ReadTextWithOptions(r, int64(area.Offset), hdr, loc, h.opts.StrictChecksums, h.opts.Logger)
		if err != nil {
			lastErr = err
			continue
		}
		return text, nil
	}
	return nil, lastErr
}

// AttachPhysicalVolumes probes each source for its PV UUID and populates
// the handle's UUID-to-reader map. A source whose UUID is absent from the
// volume group is accepted silently (spec §4.6); a volume group PV never
// attached leaves logical volumes whose stripes reference it readable
// only in the regions resolved by attached PVs.
func AttachPhysicalVolumes(h *Handle, sources []io.ReaderAt) error {
	if h.state != stateDescriptorOpen {
		return fmt.Errorf("%w: AttachPhysicalVolumes requires DescriptorOpen state", lvmerr.ErrInvalidState)
	}

	for _, src := range sources {
		scanned, err := label.ScanWithOptions(src, h.opts.MaxLabelSectors, h.opts.StrictChecksums, h.opts.Logger)
		if err != nil {
			return err
		}
		pvh, err := pvheader.Parse(src, scanned.Offset+int64(scanned.Header.DataOffset))
		if err != nil {
			return err
		}
		h.readers[pvh.UUID] = src
	}

	h.state = stateVolumesAttached
	return nil
}

// Close releases the handle's references. It is idempotent and safe from
// any state.
func Close(h *Handle) error {
	h.vg = nil
	h.readers = nil
	h.state = stateClosed
	return nil
}

// VolumeGroup returns the handle's volume group, valid once Open has
// succeeded.
func VolumeGroup(h *Handle) *vg.VolumeGroup {
	return h.vg
}

// SignalAbort requests that any in-flight read or parse operation on this
// handle stop at its next poll point and return what it has so far (spec
// §5 Cancellation).
func SignalAbort(h *Handle) {
	atomic.StoreInt32(&h.abort, 1)
}

func (h *Handle) abortRequested() bool {
	return atomic.LoadInt32(&h.abort) != 0
}

// readerForPV resolves a logical PV name to its attached byte reader and
// declared size, or lvmerr.PhysicalVolumeMissingError if it was never
// attached.
func (h *Handle) readerForPV(pvName string) (io.ReaderAt, *vg.PhysicalVolume, error) {
	pv := h.vg.PhysicalVolumeByName(pvName)
	if pv == nil {
		return nil, nil, fmt.Errorf("%w: stripe references unknown physical volume %q", lvmerr.ErrInconsistent, pvName)
	}
	r, ok := h.readers[pv.UUID]
	if !ok {
		return nil, nil, &lvmerr.PhysicalVolumeMissingError{UUID: pv.UUID}
	}
	return r, pv, nil
}
