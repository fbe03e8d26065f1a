package vg

import (
	"fmt"
	"sort"

	"github.com/bgrewell/lvm2-kit/pkg/helpers"
	"github.com/bgrewell/lvm2-kit/pkg/logging"
	"github.com/bgrewell/lvm2-kit/pkg/lvmerr"
	"github.com/bgrewell/lvm2-kit/pkg/metadata"
)

// sectorBytes is the fixed unit every raw on-disk count in the textual
// metadata is expressed in (extent_size, pe_start, dev_size, stripe_size),
// per spec §4.5 and Design Note (c).
const sectorBytes = 512

// Build walks a parsed metadata.Node tree (the output of metadata.Parse)
// and constructs the VolumeGroup it describes, per spec §4.5.
func Build(root *metadata.Node) (*VolumeGroup, error) {
	return BuildWithLogger(root, nil)
}

// BuildWithLogger is Build with an optional logger recording segment
// resolution: which layout each segment uses and which physical volumes
// its stripes resolved to (spec §4.5).
func BuildWithLogger(root *metadata.Node, logger *logging.Logger) (*VolumeGroup, error) {
	vgSection := firstSection(root)
	if vgSection == nil {
		return nil, fmt.Errorf("%w: no top-level volume-group section found", lvmerr.ErrInconsistent)
	}

	name := helpers.TrimNulAndSpace(vgSection.Name)
	if name == "" || len(name) > 127 || !helpers.IsPrintableASCII(name) {
		return nil, fmt.Errorf("%w: volume group name %q is not printable ASCII of length 1..127", lvmerr.ErrInconsistent, vgSection.Name)
	}

	g := &VolumeGroup{
		Name:     name,
		pvByName: map[string]*PhysicalVolume{},
		pvByUUID: map[string]*PhysicalVolume{},
		lvByName: map[string]*LogicalVolume{},
	}

	idVal, err := requireString(vgSection, "id")
	if err != nil {
		return nil, err
	}
	g.UUID = idVal

	seqno, err := requireInt(vgSection, "seqno")
	if err != nil {
		return nil, err
	}
	g.SeqNo = uint64(seqno)

	extentSectors, err := requireInt(vgSection, "extent_size")
	if err != nil {
		return nil, err
	}
	if extentSectors <= 0 || extentSectors&(extentSectors-1) != 0 {
		return nil, fmt.Errorf("%w: extent_size %d (sectors) is not a positive power of two", lvmerr.ErrInconsistent, extentSectors)
	}
	g.ExtentSize = uint64(extentSectors) * sectorBytes

	if pvsSection := vgSection.Section("physical_volumes"); pvsSection != nil {
		for _, pvNode := range pvsSection.Sections() {
			pv, err := buildPhysicalVolume(pvNode)
			if err != nil {
				return nil, err
			}
			if _, exists := g.pvByName[pv.Name]; exists {
				return nil, fmt.Errorf("%w: duplicate physical volume name %q", lvmerr.ErrInconsistent, pv.Name)
			}
			if _, exists := g.pvByUUID[pv.UUID]; exists {
				return nil, fmt.Errorf("%w: duplicate physical volume UUID %q", lvmerr.ErrInconsistent, pv.UUID)
			}
			g.pvs = append(g.pvs, pv)
			g.pvByName[pv.Name] = pv
			g.pvByUUID[pv.UUID] = pv
		}
	}

	if lvsSection := vgSection.Section("logical_volumes"); lvsSection != nil {
		for _, lvNode := range lvsSection.Sections() {
			lv, err := buildLogicalVolume(lvNode, g, logger)
			if err != nil {
				return nil, err
			}
			if _, exists := g.lvByName[lv.Name]; exists {
				return nil, fmt.Errorf("%w: duplicate logical volume name %q", lvmerr.ErrInconsistent, lv.Name)
			}
			g.lvs = append(g.lvs, lv)
			g.lvByName[lv.Name] = lv
		}
	}

	return g, nil
}

func firstSection(root *metadata.Node) *metadata.Node {
	for _, c := range root.Children {
		if c.Kind == metadata.NodeSection {
			return c
		}
	}
	return nil
}

func buildPhysicalVolume(n *metadata.Node) (*PhysicalVolume, error) {
	id, err := requireString(n, "id")
	if err != nil {
		return nil, fmt.Errorf("physical volume %q: %w", n.Name, err)
	}
	device, _ := optionalString(n, "device")
	peStartSectors, err := requireInt(n, "pe_start")
	if err != nil {
		return nil, fmt.Errorf("physical volume %q: %w", n.Name, err)
	}
	devSizeSectors, err := requireInt(n, "dev_size")
	if err != nil {
		return nil, fmt.Errorf("physical volume %q: %w", n.Name, err)
	}

	return &PhysicalVolume{
		Name:       n.Name,
		UUID:       id,
		DevicePath: device,
		Size:       uint64(devSizeSectors) * sectorBytes,
		PEStart:    uint64(peStartSectors) * sectorBytes,
	}, nil
}

func buildLogicalVolume(n *metadata.Node, g *VolumeGroup, logger *logging.Logger) (*LogicalVolume, error) {
	id, err := requireString(n, "id")
	if err != nil {
		return nil, fmt.Errorf("logical volume %q: %w", n.Name, err)
	}

	lv := &LogicalVolume{Name: n.Name, UUID: id, vg: g}

	var segments []Segment
	for _, sub := range n.Sections() {
		seg, ok, err := buildSegmentIfApplicable(sub, g)
		if err != nil {
			return nil, fmt.Errorf("logical volume %q: %w", n.Name, err)
		}
		if ok {
			if logger != nil {
				names := make([]string, len(seg.Stripes))
				for i, s := range seg.Stripes {
					names[i] = s.PVName
				}
				logger.WithLV(n.Name).Trace("resolved segment", "start", seg.Start, "size", seg.Size, "type", seg.Type.String(), "pvs", names)
			}
			segments = append(segments, seg)
		}
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	var offset uint64
	for i := range segments {
		if segments[i].Start != offset {
			return nil, fmt.Errorf("%w: logical volume %q has a gap or overlap at offset %d",
				lvmerr.ErrInconsistent, n.Name, offset)
		}
		offset += segments[i].Size
	}
	lv.Segments = segments
	lv.Size = offset

	return lv, nil
}

// buildSegmentIfApplicable builds a Segment from a section, if that
// section looks like a segment (has a start_extent assignment). Other
// child sections of a logical volume (there are none in the grammar
// today) are silently skipped, matching the builder's tolerance of
// forward-compatible additions.
func buildSegmentIfApplicable(n *metadata.Node, g *VolumeGroup) (Segment, bool, error) {
	if n.Assignment("start_extent") == nil {
		return Segment{}, false, nil
	}

	startExtent, err := requireInt(n, "start_extent")
	if err != nil {
		return Segment{}, false, err
	}
	extentCount, err := requireInt(n, "extent_count")
	if err != nil {
		return Segment{}, false, err
	}
	typeName, err := requireString(n, "type")
	if err != nil {
		return Segment{}, false, err
	}

	seg := Segment{
		Start:       uint64(startExtent) * g.ExtentSize,
		ExtentCount: uint64(extentCount),
		Size:        uint64(extentCount) * g.ExtentSize,
	}

	switch typeName {
	case "linear":
		seg.Type = SegmentLinear
		seg.StripeSize = g.ExtentSize
		stripes, err := parseStripes(n, 1, g.ExtentSize)
		if err != nil {
			return Segment{}, false, err
		}
		seg.Stripes = stripes
	case "striped":
		seg.Type = SegmentStriped
		stripeCount, err := requireInt(n, "stripe_count")
		if err != nil {
			return Segment{}, false, err
		}
		if stripeCount < 2 {
			return Segment{}, false, fmt.Errorf("%w: striped segment has stripe_count %d < 2", lvmerr.ErrInconsistent, stripeCount)
		}
		stripeSizeSectors, err := requireInt(n, "stripe_size")
		if err != nil {
			return Segment{}, false, err
		}
		stripeSize := uint64(stripeSizeSectors) * sectorBytes
		if stripeSize == 0 || stripeSize >= seg.Size || seg.Size%stripeSize != 0 {
			return Segment{}, false, fmt.Errorf("%w: stripe_size %d does not divide segment size %d", lvmerr.ErrInconsistent, stripeSize, seg.Size)
		}
		if uint64(extentCount)%uint64(stripeCount) != 0 {
			return Segment{}, false, fmt.Errorf("%w: extent_count %d is not divisible by stripe_count %d", lvmerr.ErrInconsistent, extentCount, stripeCount)
		}
		seg.StripeSize = stripeSize
		stripes, err := parseStripes(n, int(stripeCount), g.ExtentSize)
		if err != nil {
			return Segment{}, false, err
		}
		seg.Stripes = stripes
	default:
		seg.Type = SegmentUnsupported
		seg.UnsupportedTypeName = typeName
		return seg, true, nil
	}

	// Resolve each stripe's PV and fold in its pe_start, so that
	// Stripe.PEOffset is already the absolute byte offset within the PV
	// (spec §4.6's mapping formula adds only the in-segment local offset
	// on top of it).
	for i := range seg.Stripes {
		pv := g.PhysicalVolumeByName(seg.Stripes[i].PVName)
		if pv == nil {
			return Segment{}, false, fmt.Errorf("%w: stripe references unknown physical volume %q", lvmerr.ErrInconsistent, seg.Stripes[i].PVName)
		}
		seg.Stripes[i].PEOffset += pv.PEStart
	}

	return seg, true, nil
}

// parseStripes reads the flat `stripes = ["<pvname>", <pe_offset>, ...]`
// list and converts each pe_offset (an extent index) to a byte offset via
// extentSize, per spec §3's Stripe attribute definition.
func parseStripes(n *metadata.Node, want int, extentSize uint64) ([]Stripe, error) {
	a := n.Assignment("stripes")
	if a == nil {
		return nil, fmt.Errorf("%w: segment is missing a stripes array", lvmerr.ErrInconsistent)
	}
	if a.Value.Kind != metadata.KindArray || len(a.Value.Array)%2 != 0 {
		return nil, fmt.Errorf("%w: stripes array must be a flat list of (pv name, pe offset) pairs", lvmerr.ErrInconsistent)
	}
	pairs := len(a.Value.Array) / 2
	if pairs != want {
		return nil, fmt.Errorf("%w: expected %d stripe(s), found %d", lvmerr.ErrInconsistent, want, pairs)
	}

	stripes := make([]Stripe, 0, pairs)
	for i := 0; i < len(a.Value.Array); i += 2 {
		nameVal := a.Value.Array[i]
		offVal := a.Value.Array[i+1]
		if nameVal.Kind != metadata.KindString || offVal.Kind != metadata.KindInteger {
			return nil, fmt.Errorf("%w: malformed stripe pair at index %d", lvmerr.ErrInconsistent, i/2)
		}
		stripes = append(stripes, Stripe{PVName: nameVal.String, PEOffset: uint64(offVal.Integer) * extentSize})
	}
	return stripes, nil
}

func requireString(n *metadata.Node, name string) (string, error) {
	a := n.Assignment(name)
	if a == nil || a.Value.Kind != metadata.KindString {
		return "", fmt.Errorf("%w: %q is missing a %s assignment", lvmerr.ErrInconsistent, n.Name, name)
	}
	return a.Value.String, nil
}

func optionalString(n *metadata.Node, name string) (string, bool) {
	a := n.Assignment(name)
	if a == nil || a.Value.Kind != metadata.KindString {
		return "", false
	}
	return a.Value.String, true
}

func requireInt(n *metadata.Node, name string) (int64, error) {
	a := n.Assignment(name)
	if a == nil || a.Value.Kind != metadata.KindInteger {
		return 0, fmt.Errorf("%w: %q is missing a %s assignment", lvmerr.ErrInconsistent, n.Name, name)
	}
	return a.Value.Integer, nil
}
