package vg

import (
	"testing"

	"github.com/bgrewell/lvm2-kit/pkg/metadata"
	"github.com/stretchr/testify/require"
)

const linearDoc = `
vg0 {
	id = "vgid0"
	seqno = 1
	extent_size = 8192
	physical_volumes {
		pv0 {
			id = "pvid0"
			device = "/dev/sda1"
			pe_start = 2048
			dev_size = 204800
		}
	}
	logical_volumes {
		lv0 {
			id = "lvid0"
			segment1 {
				start_extent = 0
				extent_count = 2
				type = "linear"
				stripes = ["pv0", 0]
			}
		}
	}
}
`

func TestBuildLinearVolumeGroup(t *testing.T) {
	root, err := metadata.Parse([]byte(linearDoc))
	require.NoError(t, err)

	g, err := Build(root)
	require.NoError(t, err)

	require.Equal(t, "vg0", g.Name)
	require.Equal(t, "vgid0", g.UUID)
	require.EqualValues(t, 1, g.SeqNo)
	require.EqualValues(t, 8192*512, g.ExtentSize)

	pv := g.PhysicalVolumeByName("pv0")
	require.NotNil(t, pv)
	require.Equal(t, "pvid0", pv.UUID)
	require.Equal(t, "/dev/sda1", pv.DevicePath)

	lv := g.LogicalVolumeByName("lv0")
	require.NotNil(t, lv)
	require.Same(t, g, lv.VolumeGroup())
	require.Len(t, lv.Segments, 1)
	seg := lv.Segments[0]
	require.Equal(t, SegmentLinear, seg.Type)
	require.EqualValues(t, 0, seg.Start)
	require.EqualValues(t, 2*8192*512, seg.Size)
	require.Len(t, seg.Stripes, 1)
	require.Equal(t, "pv0", seg.Stripes[0].PVName)
	require.Equal(t, pv.PEStart, seg.Stripes[0].PEOffset)
	require.Equal(t, g.ExtentSize, seg.StripeSize)
	require.Equal(t, lv.Size, seg.Size)
}

const stripedDoc = `
vg0 {
	id = "vgid0"
	seqno = 1
	extent_size = 8192
	physical_volumes {
		pv0 { id = "pvid0" device = "/dev/sda1" pe_start = 2048 dev_size = 204800 }
		pv1 { id = "pvid1" device = "/dev/sdb1" pe_start = 2048 dev_size = 204800 }
	}
	logical_volumes {
		lv0 {
			id = "lvid0"
			segment1 {
				start_extent = 0
				extent_count = 4
				type = "striped"
				stripe_count = 2
				stripe_size = 16
				stripes = ["pv0", 0, "pv1", 0]
			}
		}
	}
}
`

func TestBuildStripedVolumeGroup(t *testing.T) {
	root, err := metadata.Parse([]byte(stripedDoc))
	require.NoError(t, err)

	g, err := Build(root)
	require.NoError(t, err)

	lv := g.LogicalVolumeByName("lv0")
	require.NotNil(t, lv)
	require.Len(t, lv.Segments, 1)
	seg := lv.Segments[0]
	require.Equal(t, SegmentStriped, seg.Type)
	require.Len(t, seg.Stripes, 2)
	require.EqualValues(t, 16*512, seg.StripeSize)
}

func TestBuildRejectsNonPowerOfTwoExtentSize(t *testing.T) {
	src := []byte(`vg0 { id = "v" seqno = 1 extent_size = 100 }`)
	root, err := metadata.Parse(src)
	require.NoError(t, err)
	_, err = Build(root)
	require.Error(t, err)
}

func TestBuildRejectsDuplicatePVName(t *testing.T) {
	src := []byte(`
vg0 {
	id = "v" seqno = 1 extent_size = 8192
	physical_volumes {
		pv0 { id = "a" device = "/dev/sda" pe_start = 0 dev_size = 100 }
		pv1 { id = "b" device = "/dev/sdb" pe_start = 0 dev_size = 100 }
	}
}
`)
	root, err := metadata.Parse(src)
	require.NoError(t, err)
	// metadata.Parse itself rejects duplicate section names, so the
	// duplicate is introduced in the parsed tree to reach Build's own check.
	root.Section("vg0").Section("physical_volumes").Sections()[1].Name = "pv0"
	_, err = Build(root)
	require.Error(t, err)
}

func TestBuildUnsupportedSegmentTypeDoesNotFailWholeVG(t *testing.T) {
	src := []byte(`
vg0 {
	id = "v" seqno = 1 extent_size = 8192
	physical_volumes {
		pv0 { id = "a" device = "/dev/sda" pe_start = 0 dev_size = 100 }
	}
	logical_volumes {
		lv0 {
			id = "lvid0"
			segment1 {
				start_extent = 0
				extent_count = 1
				type = "thin"
			}
		}
	}
}
`)
	root, err := metadata.Parse(src)
	require.NoError(t, err)

	g, err := Build(root)
	require.NoError(t, err)

	lv := g.LogicalVolumeByName("lv0")
	require.NotNil(t, lv)
	require.Len(t, lv.Segments, 1)
	require.Equal(t, SegmentUnsupported, lv.Segments[0].Type)
	require.Equal(t, "thin", lv.Segments[0].UnsupportedTypeName)
}

func TestBuildRejectsSegmentGap(t *testing.T) {
	src := []byte(`
vg0 {
	id = "v" seqno = 1 extent_size = 8192
	physical_volumes {
		pv0 { id = "a" device = "/dev/sda" pe_start = 0 dev_size = 100000 }
	}
	logical_volumes {
		lv0 {
			id = "lvid0"
			segment1 { start_extent = 0 extent_count = 2 type = "linear" stripes = ["pv0", 0] }
			segment2 { start_extent = 4 extent_count = 2 type = "linear" stripes = ["pv0", 2] }
		}
	}
}
`)
	root, err := metadata.Parse(src)
	require.NoError(t, err)
	_, err = Build(root)
	require.Error(t, err)
}

func TestBuildRejectsStripeReferencingUnknownPV(t *testing.T) {
	src := []byte(`
vg0 {
	id = "v" seqno = 1 extent_size = 8192
	logical_volumes {
		lv0 {
			id = "lvid0"
			segment1 { start_extent = 0 extent_count = 1 type = "linear" stripes = ["pv0", 0] }
		}
	}
}
`)
	root, err := metadata.Parse(src)
	require.NoError(t, err)
	_, err = Build(root)
	require.Error(t, err)
}
