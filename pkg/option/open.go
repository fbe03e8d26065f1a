package option

import (
	"github.com/bgrewell/lvm2-kit/pkg/consts"
	"github.com/bgrewell/lvm2-kit/pkg/logging"
)

// OpenOptions configures a Handle at open time.
type OpenOptions struct {
	Logger          *logging.Logger
	MaxLabelSectors int
	MaxNestingDepth int
	StrictChecksums bool
}

// OpenOption mutates an OpenOptions.
type OpenOption func(*OpenOptions)

// NewOpenOptions returns the default OpenOptions with every opt applied.
func NewOpenOptions(opts ...OpenOption) *OpenOptions {
	o := &OpenOptions{
		MaxLabelSectors: consts.LabelScanSectors,
		MaxNestingDepth: consts.MaxParseDepth,
		StrictChecksums: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger attaches a logger to the Handle; nil disables logging.
func WithLogger(logger *logging.Logger) OpenOption {
	return func(o *OpenOptions) {
		o.Logger = logger
	}
}

// WithMaxLabelSectors overrides how many leading sectors the label scanner
// inspects for the LABELONE signature (spec §4.1 scans the first 4).
func WithMaxLabelSectors(sectors int) OpenOption {
	return func(o *OpenOptions) {
		o.MaxLabelSectors = sectors
	}
}

// WithMaxNestingDepth overrides the textual-metadata parser's nesting cap
// (spec §4.4's "document a hard cap").
func WithMaxNestingDepth(depth int) OpenOption {
	return func(o *OpenOptions) {
		o.MaxNestingDepth = depth
	}
}

// WithStrictChecksums, when false, downgrades a corrupted label,
// mda_header, or metadata-text checksum from a hard parse error to a
// tolerated mismatch. On
// by default, matching the data model's checksum invariant; disabling it
// exists for recovering metadata from a PV with known bit-rot.
func WithStrictChecksums(strict bool) OpenOption {
	return func(o *OpenOptions) {
		o.StrictChecksums = strict
	}
}
