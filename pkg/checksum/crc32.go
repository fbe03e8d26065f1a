// Package checksum implements the non-standard CRC-32 variant used to
// validate LVM2 labels, metadata-area headers, and raw-location text.
//
// The CRC-32 computation itself is treated as a commodity external
// collaborator (spec §1 "Out of scope"); this package is a thin wrapper
// around the standard library's table-driven primitive that adds the one
// thing the stdlib doesn't expose directly: a caller-supplied initial
// value with no final XOR.
package checksum

import "hash/crc32"

// table is the reflected IEEE polynomial (0xedb88320), the same table
// hash/crc32.IEEETable uses.
var table = crc32.IEEETable

// Calculate computes the CRC-32 of data, seeded with initial, using the
// reflected 0xedb88320 polynomial and no final XOR. This matches
// libvslvm's libvslvm_checksum_calculate_crc32 and the on-disk checksum
// fields in the label header, mda_header, and raw-location records.
func Calculate(data []byte, initial uint32) uint32 {
	return crc32.Update(initial, table, data)
}
