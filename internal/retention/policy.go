package retention

import "fmt"

// Mode is the retention rule a Policy applies.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeFlat
	ModeDual
)

func (m Mode) String() string {
	switch m {
	case ModeFlat:
		return "flat"
	case ModeDual:
		return "dual"
	default:
		return "disabled"
	}
}

// Track caps one kind of version. Every version whose track number is a
// multiple of KeepIntermediate is preferred for retention.
type Track struct {
	Max              int `json:"max"`
	KeepIntermediate int `json:"keep_intermediate"`
}

// Policy holds the retention limits. Build it once at startup, run it
// through Normalize, and share it read-only.
type Policy struct {
	// MaxVersions is the legacy flat cap. 0 disables flat mode.
	MaxVersions int `json:"max_versions"`

	Major Track `json:"major"`
	Minor Track `json:"minor"`
}

// Mode resolves which rule applies. Dual mode wins when either track has a
// cap; the flat cap is only consulted when both track caps are zero.
func (p Policy) Mode() Mode {
	switch {
	case p.Major.Max > 0 || p.Minor.Max > 0:
		return ModeDual
	case p.MaxVersions > 0:
		return ModeFlat
	default:
		return ModeDisabled
	}
}

// Normalize clamps out-of-range values and returns one warning per
// adjustment. Negative limits become 0 and KeepIntermediate is capped at Max.
func (p Policy) Normalize() (Policy, []string) {
	var warnings []string

	if p.MaxVersions < 0 {
		warnings = append(warnings, fmt.Sprintf("maxVersions %d is negative, using 0", p.MaxVersions))
		p.MaxVersions = 0
	}
	p.Major, warnings = normalizeTrack("Major", p.Major, warnings)
	p.Minor, warnings = normalizeTrack("Minor", p.Minor, warnings)

	return p, warnings
}

func normalizeTrack(name string, t Track, warnings []string) (Track, []string) {
	if t.Max < 0 {
		warnings = append(warnings, fmt.Sprintf("max%sVersions %d is negative, using 0", name, t.Max))
		t.Max = 0
	}
	if t.KeepIntermediate < 0 {
		warnings = append(warnings, fmt.Sprintf("keepIntermediate%sVersions %d is negative, using 0", name, t.KeepIntermediate))
		t.KeepIntermediate = 0
	}
	if t.KeepIntermediate > t.Max {
		warnings = append(warnings, fmt.Sprintf("keepIntermediate%sVersions (%d) exceeds max%sVersions (%d), clamping to %d",
			name, t.KeepIntermediate, name, t.Max, t.Max))
		t.KeepIntermediate = t.Max
	}
	return t, warnings
}
