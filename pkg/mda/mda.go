// Package mda implements the metadata-area header parser and raw-location
// selection described in spec §4.3: locating the mda_header at a
// metadata-area offset, validating it, and extracting the textual-metadata
// byte range of its first non-ignored raw-location record from its
// circular buffer.
package mda

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bgrewell/lvm2-kit/pkg/checksum"
	"github.com/bgrewell/lvm2-kit/pkg/consts"
	"github.com/bgrewell/lvm2-kit/pkg/logging"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
)

// RawLocation is one {data_offset, data_size, checksum, flags} record
// from the mda_header's raw-location table.
type RawLocation struct {
	DataOffset uint64
	DataSize   uint64
	Checksum   uint32
	Flags      uint32
}

// ignoredFlag marks a raw-location record that should not be considered
// for selection. Its exact semantics are underdocumented upstream (spec
// §9 Open Question (a)); this library treats it as "record not live".
const ignoredFlag = 0x01

// Header is the parsed 512-byte mda_header.
type Header struct {
	Checksum  uint32
	Version   uint32
	MDAOffset uint64
	MDASize   uint64
	Locations []RawLocation
}

// Parse reads and validates the mda_header located at absolute offset
// `at` (a metadata-area offset from the PV header's metadata-area table).
// It returns lvmerr.ErrCorruptedMetadataHeader if the signature, version,
// self-reported offset, or checksum don't validate.
func Parse(r io.ReaderAt, at int64) (*Header, error) {
	return ParseWithOptions(r, at, true, nil)
}

// ParseWithOptions is Parse with checksum strictness overridden, per
// option.WithStrictChecksums, and an optional logger recording the
// checksum verification (spec §4.3).
func ParseWithOptions(r io.ReaderAt, at int64, strictChecksum bool, logger *logging.Logger) (*Header, error) {
	buf := make([]byte, consts.MDAHeaderSize)
	if _, err := r.ReadAt(buf, at); err != nil {
		return nil, fmt.Errorf("%w: reading mda_header: %v", lvmerr.ErrIO, err)
	}

	checksumField := binary.LittleEndian.Uint32(buf[0:4])
	signature := string(buf[4:20])
	if signature != consts.MDASignature {
		return nil, fmt.Errorf("%w: unexpected mda_header signature %q", lvmerr.ErrCorruptedMetadataHeader, signature)
	}

	version := binary.LittleEndian.Uint32(buf[20:24])
	if version != consts.MDAVersion {
		return nil, fmt.Errorf("%w: unsupported mda_header version %d", lvmerr.ErrCorruptedMetadataHeader, version)
	}

	mdaOffset := binary.LittleEndian.Uint64(buf[24:32])
	if int64(mdaOffset) != at {
		return nil, fmt.Errorf("%w: mda_offset %d does not match metadata-area offset %d",
			lvmerr.ErrCorruptedMetadataHeader, mdaOffset, at)
	}
	mdaSize := binary.LittleEndian.Uint64(buf[32:40])

	want := checksum.Calculate(buf[4:consts.MDAHeaderSize], consts.ChecksumSeed)
	if want != checksumField {
		if logger != nil {
			logger.Debug("mda_header checksum mismatch", "offset", at, "stored", checksumField, "computed", want, "strict", strictChecksum)
		}
		if strictChecksum {
			return nil, fmt.Errorf("%w: checksum mismatch (stored %#x, computed %#x)",
				lvmerr.ErrCorruptedMetadataHeader, checksumField, want)
		}
	} else if logger != nil {
		logger.Trace("verified mda_header checksum", "offset", at, "checksum", checksumField)
	}

	locations, err := parseRawLocations(buf[40:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lvmerr.ErrCorruptedMetadataHeader, err)
	}

	return &Header{
		Checksum:  checksumField,
		Version:   version,
		MDAOffset: mdaOffset,
		MDASize:   mdaSize,
		Locations: locations,
	}, nil
}

const rawLocationRecordSize = 24 // {data_offset u64, data_size u64, checksum u32, flags u32}

func parseRawLocations(buf []byte) ([]RawLocation, error) {
	var locs []RawLocation
	for off := 0; off+rawLocationRecordSize <= len(buf); off += rawLocationRecordSize {
		rec := buf[off : off+rawLocationRecordSize]
		dataOffset := binary.LittleEndian.Uint64(rec[0:8])
		dataSize := binary.LittleEndian.Uint64(rec[8:16])
		crc := binary.LittleEndian.Uint32(rec[16:20])
		flags := binary.LittleEndian.Uint32(rec[20:24])

		if dataOffset == 0 && dataSize == 0 && crc == 0 && flags == 0 {
			return locs, nil
		}
		locs = append(locs, RawLocation{
			DataOffset: dataOffset,
			DataSize:   dataSize,
			Checksum:   crc,
			Flags:      flags,
		})
	}
	return nil, fmt.Errorf("raw-location table is not terminated within the header")
}

// Select picks the raw-location record to use for this metadata area,
// per spec §4.3 / §9 Open Question (a): the first record that isn't
// ignored.
//
// TODO: once the flags bit assignments are documented, pick the record
// with the highest committed generation among the non-ignored ones
// instead of the first, for volume groups with multiple live copies.
func Select(h *Header) (*RawLocation, error) {
	return SelectWithOptions(h, nil)
}

// SelectWithOptions is Select with an optional logger recording which
// raw-location record was chosen, and which were skipped as ignored.
func SelectWithOptions(h *Header, logger *logging.Logger) (*RawLocation, error) {
	for i := range h.Locations {
		loc := &h.Locations[i]
		if loc.Flags&ignoredFlag != 0 {
			if logger != nil {
				logger.Trace("skipping ignored raw-location record", "index", i, "flags", loc.Flags)
			}
			continue
		}
		if logger != nil {
			logger.Debug("selected raw-location record", "index", i, "data_offset", loc.DataOffset, "data_size", loc.DataSize)
		}
		return loc, nil
	}
	return nil, fmt.Errorf("%w: no usable raw-location record", lvmerr.ErrCorruptedMetadataHeader)
}

// ReadText reads the textual metadata delimited by loc from the circular
// buffer that follows the mda_header at mdaOffset, handling wrap-around,
// and validates its own CRC-32 against loc.Checksum.
func ReadText(r io.ReaderAt, mdaOffset int64, h *Header, loc *RawLocation) ([]byte, error) {
	return ReadTextWithOptions(r, mdaOffset, h, loc, true, nil)
}

// ReadTextWithOptions is ReadText with checksum strictness overridden, per
// option.WithStrictChecksums, and an optional logger recording the
// checksum verification.
func ReadTextWithOptions(r io.ReaderAt, mdaOffset int64, h *Header, loc *RawLocation, strictChecksum bool, logger *logging.Logger) ([]byte, error) {
	ringSize := h.MDASize - consts.MDAHeaderSize
	if ringSize == 0 {
		return nil, fmt.Errorf("%w: mda_size too small for a ring buffer", lvmerr.ErrCorruptedMetadataHeader)
	}

	// data_offset is relative to the metadata-area start (mdaOffset); the
	// ring itself begins right after the 512-byte header and wraps back
	// to that point, never to the area's absolute start.
	ringStart := mdaOffset + consts.MDAHeaderSize
	start := loc.DataOffset
	size := loc.DataSize

	text := make([]byte, size)
	if start+size <= h.MDASize {
		if _, err := r.ReadAt(text, mdaOffset+int64(start)); err != nil {
			return nil, fmt.Errorf("%w: reading metadata text: %v", lvmerr.ErrIO, err)
		}
	} else {
		// Wraps around the end of the ring; read in two pieces.
		firstLen := h.MDASize - start
		if _, err := r.ReadAt(text[:firstLen], mdaOffset+int64(start)); err != nil {
			return nil, fmt.Errorf("%w: reading metadata text (first segment): %v", lvmerr.ErrIO, err)
		}
		secondLen := size - firstLen
		if _, err := r.ReadAt(text[firstLen:firstLen+secondLen], ringStart); err != nil {
			return nil, fmt.Errorf("%w: reading metadata text (wrapped segment): %v", lvmerr.ErrIO, err)
		}
	}

	got := checksum.Calculate(text, consts.ChecksumSeed)
	if got != loc.Checksum {
		if logger != nil {
			logger.Debug("metadata text checksum mismatch", "stored", loc.Checksum, "computed", got, "strict", strictChecksum)
		}
		if strictChecksum {
			return nil, fmt.Errorf("%w: checksum mismatch (stored %#x, computed %#x)",
				lvmerr.ErrCorruptedMetadataText, loc.Checksum, got)
		}
	} else if logger != nil {
		logger.Trace("verified metadata text checksum", "size", len(text), "checksum", loc.Checksum)
	}
	return text, nil
}
