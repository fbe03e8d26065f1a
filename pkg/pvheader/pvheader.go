// Package pvheader implements the physical-volume header parser: the PV
// UUID, volume size, and the data-area / metadata-area descriptor tables
// that follow the LABELONE label (spec §4.2).
package pvheader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bgrewell/lvm2-kit/pkg/consts"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
)

// AreaDescriptor is one {offset, size} entry from a data-area or
// metadata-area table.
type AreaDescriptor struct {
	Offset uint64
	Size   uint64
}

// Header is the parsed physical-volume header: the PV's on-wire UUID, its
// declared size, and the two descriptor tables that follow it.
type Header struct {
	UUID         string
	VolumeSize   uint64
	DataAreas     []AreaDescriptor
	MetadataAreas []AreaDescriptor
}

const descriptorSize = 16 // {offset uint64, size uint64}

// Parse reads the physical-volume header starting at absolute offset
// `at` (label_offset + data_offset, per spec §4.2) and returns the parsed
// UUID, volume size, and descriptor tables. It enforces that every
// non-terminal descriptor is 512-byte aligned and lies strictly within
// [0, volume_size).
func Parse(r io.ReaderAt, at int64) (*Header, error) {
	// UUID (32) + volume_size (8) = 40 bytes fixed header, then two
	// variable-length, zero-terminated descriptor tables.
	fixed := make([]byte, consts.PVHeaderUUIDSize+8)
	if _, err := r.ReadAt(fixed, at); err != nil {
		return nil, fmt.Errorf("%w: reading pv header: %v", lvmerr.ErrIO, err)
	}

	h := &Header{
		UUID:       string(fixed[0:consts.PVHeaderUUIDSize]),
		VolumeSize: binary.LittleEndian.Uint64(fixed[consts.PVHeaderUUIDSize : consts.PVHeaderUUIDSize+8]),
	}

	cursor := at + int64(len(fixed))

	dataAreas, next, err := readAreaTable(r, cursor, h.VolumeSize)
	if err != nil {
		return nil, fmt.Errorf("data areas: %w", err)
	}
	h.DataAreas = dataAreas
	cursor = next

	mdAreas, _, err := readAreaTable(r, cursor, h.VolumeSize)
	if err != nil {
		return nil, fmt.Errorf("metadata areas: %w", err)
	}
	h.MetadataAreas = mdAreas

	return h, nil
}

// readAreaTable reads consecutive {offset, size} descriptors starting at
// `at` until it encounters a terminal all-zero descriptor, returning the
// descriptors read and the offset immediately following the terminator.
func readAreaTable(r io.ReaderAt, at int64, volumeSize uint64) ([]AreaDescriptor, int64, error) {
	var descs []AreaDescriptor
	cursor := at
	buf := make([]byte, descriptorSize)
	for {
		if _, err := r.ReadAt(buf, cursor); err != nil {
			return nil, 0, fmt.Errorf("%w: reading area descriptor at %d: %v", lvmerr.ErrIO, cursor, err)
		}
		offset := binary.LittleEndian.Uint64(buf[0:8])
		size := binary.LittleEndian.Uint64(buf[8:16])
		cursor += descriptorSize

		if offset == 0 && size == 0 {
			return descs, cursor, nil
		}

		if offset%consts.SectorSize != 0 {
			return nil, 0, fmt.Errorf("%w: area offset %d is not sector-aligned", lvmerr.ErrCorruptedLabel, offset)
		}
		if offset >= volumeSize {
			return nil, 0, fmt.Errorf("%w: area offset %d lies outside volume of size %d",
				lvmerr.ErrCorruptedLabel, offset, volumeSize)
		}
		descs = append(descs, AreaDescriptor{Offset: offset, Size: size})
	}
}
