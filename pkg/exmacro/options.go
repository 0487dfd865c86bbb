// Package exmacro extracts VBA macro source and UI control metadata from Excel workbooks.
package exmacro

import "github.com/rs/zerolog"

// Mode represents the extraction mode.
type Mode string

const (
	// ModeLight scans the container XML and lists worksheets only (no VBA).
	ModeLight Mode = "light"
	// ModeStandard adds VBA extraction and control mining over the macro text.
	ModeStandard Mode = "standard"
	// ModeVerbose also records drawing anchor positions.
	ModeVerbose Mode = "verbose"
)

// ParseMode converts a mode name, defaulting to standard for unknown values.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeLight, ModeVerbose:
		return Mode(s)
	}
	return ModeStandard
}

// Options configures extraction behavior.
type Options struct {
	// Mode specifies the extraction mode (light, standard, verbose).
	Mode Mode
	// IncludeVBA specifies whether to extract and mine VBA source.
	// If nil, defaults to false for light mode, true otherwise.
	IncludeVBA *bool
	// IncludePositions specifies whether to record drawing anchor offsets.
	// If nil, defaults to true for verbose mode, false otherwise.
	IncludePositions *bool
	// TempDir is where uploads are staged. Empty means os.TempDir().
	TempDir string
	// Debug attaches error details (including recovered panics) to warnings.
	Debug bool
	// Logger receives warnings. The zero value discards output.
	Logger zerolog.Logger
}

// DefaultOptions returns default extraction options.
func DefaultOptions() Options {
	return Options{
		Mode:   ModeStandard,
		Logger: zerolog.Nop(),
	}
}

// ShouldIncludeVBA returns whether to extract VBA source.
func (o Options) ShouldIncludeVBA() bool {
	if o.IncludeVBA != nil {
		return *o.IncludeVBA
	}
	return o.Mode != ModeLight
}

// ShouldIncludePositions returns whether to record anchor offsets.
func (o Options) ShouldIncludePositions() bool {
	if o.IncludePositions != nil {
		return *o.IncludePositions
	}
	return o.Mode == ModeVerbose
}
