// Package vg implements the data model of spec §3 (VolumeGroup,
// PhysicalVolume, LogicalVolume, Segment, Stripe) and the builder of
// spec §4.5 that walks a parsed metadata.Node tree to construct it.
package vg

import "fmt"

// SegmentType discriminates the two segment layouts this library
// understands. Mirror, cache, thin, and snapshot segments are explicitly
// out of scope (spec §1 Non-goals) and surface as SegmentUnsupported.
type SegmentType int

const (
	SegmentLinear SegmentType = iota
	SegmentStriped
	SegmentUnsupported
)

func (t SegmentType) String() string {
	switch t {
	case SegmentLinear:
		return "linear"
	case SegmentStriped:
		return "striped"
	default:
		return "unsupported"
	}
}

// Stripe identifies one arm of a segment: a physical volume (by logical
// name, a lookup rather than an owning link) and the absolute byte offset
// within that PV (already folded in with the PV's pe_start) at which this
// stripe's extents begin.
type Stripe struct {
	PVName   string
	PEOffset uint64
}

// Segment is a contiguous run of logical-volume bytes implemented by a
// single layout scheme.
type Segment struct {
	Start       uint64 // byte offset within the LV
	Size        uint64 // bytes
	ExtentCount uint64
	Type        SegmentType
	StripeSize  uint64 // bytes; == VG extent size for linear segments
	Stripes     []Stripe

	// UnsupportedTypeName preserves the raw `type` string for segments
	// recognized by the grammar but not implemented, so callers attempting
	// to read them get a meaningful error (spec §4.5 point 4).
	UnsupportedTypeName string
}

// LogicalVolume is a named, sized, byte-addressable object composed of
// an ordered, gap-free, non-overlapping run of segments.
type LogicalVolume struct {
	Name     string
	UUID     string
	Size     uint64 // bytes; == sum of segment sizes
	Segments []Segment

	vg *VolumeGroup
}

// VolumeGroup returns the volume group that owns this logical volume.
func (lv *LogicalVolume) VolumeGroup() *VolumeGroup { return lv.vg }

// Describe returns a one-line human-readable summary, in the spirit of
// libvslvm's pyvslvm_volume_group name/identifier/size accessors exposed
// for scripting.
func (lv *LogicalVolume) Describe() string {
	return fmt.Sprintf("%s (%s): %d bytes, %d segment(s)", lv.Name, lv.UUID, lv.Size, len(lv.Segments))
}

// PhysicalVolume is a disk, partition, or file that contributes extents
// to the volume group.
type PhysicalVolume struct {
	Name       string
	UUID       string
	DevicePath string
	Size       uint64
	PEStart    uint64 // byte offset of the start of the data area on this PV
}

// Describe returns a one-line human-readable summary.
func (pv *PhysicalVolume) Describe() string {
	return fmt.Sprintf("%s (%s): device=%s size=%d", pv.Name, pv.UUID, pv.DevicePath, pv.Size)
}

// VolumeGroup is the named collection of physical volumes and logical
// volumes that share a single extent size and metadata, per spec §3.
type VolumeGroup struct {
	Name       string
	UUID       string
	SeqNo      uint64
	ExtentSize uint64 // bytes

	pvs      []*PhysicalVolume
	pvByName map[string]*PhysicalVolume
	pvByUUID map[string]*PhysicalVolume

	lvs      []*LogicalVolume
	lvByName map[string]*LogicalVolume
}

// PVs returns the volume group's physical volumes in metadata order.
func (g *VolumeGroup) PVs() []*PhysicalVolume { return g.pvs }

// LVs returns the volume group's logical volumes in metadata order.
func (g *VolumeGroup) LVs() []*LogicalVolume { return g.lvs }

// PhysicalVolumeByName looks up a physical volume by its logical name
// (e.g. "pv0"), returning nil if none exists.
func (g *VolumeGroup) PhysicalVolumeByName(name string) *PhysicalVolume {
	return g.pvByName[name]
}

// PhysicalVolumeByUUID looks up a physical volume by its on-wire UUID,
// returning nil if none exists.
func (g *VolumeGroup) PhysicalVolumeByUUID(uuid string) *PhysicalVolume {
	return g.pvByUUID[uuid]
}

// LogicalVolumeByName looks up a logical volume by name, returning nil if
// none exists.
func (g *VolumeGroup) LogicalVolumeByName(name string) *LogicalVolume {
	return g.lvByName[name]
}

// Describe returns a one-line human-readable summary.
func (g *VolumeGroup) Describe() string {
	return fmt.Sprintf("%s (%s): %d PV(s), %d LV(s), extent_size=%d", g.Name, g.UUID, len(g.pvs), len(g.lvs), g.ExtentSize)
}
