// Package label implements the LVM2 label scanner: locating and
// validating the LABELONE sector that precedes the physical-volume
// header (spec §4.1).
package label

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bgrewell/lvm2-kit/pkg/checksum"
	"github.com/bgrewell/lvm2-kit/pkg/consts"
	"github.com/bgrewell/lvm2-kit/pkg/logging"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
)

// Header is the 32-byte label header found at the start of a labeled
// sector.
type Header struct {
	// Signature is always consts.LabelSignature ("LABELONE").
	Signature string
	// SectorNumber is the sector index (0..LabelScanSectors-1) the label
	// claims to occupy; it must match where it was actually found.
	SectorNumber uint64
	// Checksum is the stored CRC-32 of the label, computed from
	// DataOffset to the end of the sector.
	Checksum uint32
	// DataOffset is the offset, relative to the start of this header, at
	// which the physical-volume header begins.
	DataOffset uint32
	// TypeIndicator is always consts.LabelTypeIndicator ("LVM2 001").
	TypeIndicator string
}

// Scanned is the result of a successful label scan: the header itself and
// the absolute byte offset at which it begins.
type Scanned struct {
	Header Header
	Offset int64
}

// Unmarshal decodes a 32-byte label header from sector. It does not
// validate the checksum; callers validate separately once they know which
// sector the header claims to be (see Scan).
func (h *Header) Unmarshal(sector []byte) error {
	if len(sector) < consts.LabelHeaderSize {
		return fmt.Errorf("lvm2: label header needs %d bytes, got %d", consts.LabelHeaderSize, len(sector))
	}
	h.Signature = string(sector[0:8])
	h.SectorNumber = binary.LittleEndian.Uint64(sector[8:16])
	h.Checksum = binary.LittleEndian.Uint32(sector[16:20])
	h.DataOffset = binary.LittleEndian.Uint32(sector[20:24])
	h.TypeIndicator = string(sector[24:32])
	return nil
}

// Scan reads the first consts.LabelScanSectors sectors of r looking for a
// LABELONE signature, and returns the validated header and its absolute
// offset. It returns lvmerr.ErrNoSignature if no sector carries the
// signature, or lvmerr.ErrCorruptedLabel if a signature is present but the
// sector number, type indicator, or checksum don't validate.
func Scan(r io.ReaderAt) (*Scanned, error) {
	return ScanWithOptions(r, consts.LabelScanSectors, true, nil)
}

// ScanWithOptions is Scan with the sector-scan depth and checksum
// strictness overridden, per option.WithMaxLabelSectors and
// option.WithStrictChecksums. With strictChecksum false, a checksum
// mismatch is tolerated and the header is still returned, and logger (if
// non-nil) records the discrepancy.
func ScanWithOptions(r io.ReaderAt, maxSectors int, strictChecksum bool, logger *logging.Logger) (*Scanned, error) {
	var buf [consts.SectorSize]byte
	for sector := 0; sector < maxSectors; sector++ {
		offset := int64(sector) * consts.SectorSize
		if _, err := r.ReadAt(buf[:], offset); err != nil {
			return nil, fmt.Errorf("%w: reading sector %d: %v", lvmerr.ErrIO, sector, err)
		}
		if string(buf[0:8]) != consts.LabelSignature {
			continue
		}

		var hdr Header
		if err := hdr.Unmarshal(buf[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", lvmerr.ErrCorruptedLabel, err)
		}
		if hdr.SectorNumber != uint64(sector) {
			return nil, fmt.Errorf("%w: sector_number %d does not match scanned sector %d",
				lvmerr.ErrCorruptedLabel, hdr.SectorNumber, sector)
		}
		if hdr.TypeIndicator != consts.LabelTypeIndicator {
			return nil, fmt.Errorf("%w: unexpected type indicator %q", lvmerr.ErrCorruptedLabel, hdr.TypeIndicator)
		}
		if hdr.DataOffset < consts.LabelHeaderSize || int(hdr.DataOffset) > consts.SectorSize {
			return nil, fmt.Errorf("%w: implausible data_offset %d", lvmerr.ErrCorruptedLabel, hdr.DataOffset)
		}

		want := checksum.Calculate(buf[hdr.DataOffset:], consts.ChecksumSeed)
		if want != hdr.Checksum {
			if logger != nil {
				logger.Debug("label checksum mismatch", "sector", sector, "stored", hdr.Checksum, "computed", want, "strict", strictChecksum)
			}
			if strictChecksum {
				return nil, fmt.Errorf("%w: checksum mismatch (stored %#x, computed %#x)",
					lvmerr.ErrCorruptedLabel, hdr.Checksum, want)
			}
		} else if logger != nil {
			logger.Trace("verified label checksum", "sector", sector, "checksum", hdr.Checksum)
		}

		return &Scanned{Header: hdr, Offset: offset}, nil
	}
	return nil, lvmerr.ErrNoSignature
}

// Probe reports whether r carries a LABELONE signature in its first
// consts.LabelScanSectors sectors, without validating the checksum. This
// is the "probe" operation of spec §6/§8-P7: signature presence only.
func Probe(r io.ReaderAt) (bool, error) {
	return ProbeWithOptions(r, consts.LabelScanSectors)
}

// ProbeWithOptions is Probe with the sector-scan depth overridden, per
// option.WithMaxLabelSectors.
func ProbeWithOptions(r io.ReaderAt, maxSectors int) (bool, error) {
	var sig [8]byte
	for sector := 0; sector < maxSectors; sector++ {
		offset := int64(sector) * consts.SectorSize
		if _, err := r.ReadAt(sig[:], offset); err != nil {
			return false, fmt.Errorf("%w: reading sector %d: %v", lvmerr.ErrIO, sector, err)
		}
		if string(sig[:]) == consts.LabelSignature {
			return true, nil
		}
	}
	return false, nil
}
