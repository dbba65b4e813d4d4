package retention

import (
	"fmt"
	"slices"
)

// SelectVictim picks the next version to remove from a head-first track.
//
// With keep <= 0 the oldest version goes. Otherwise the track is scanned from
// the oldest end toward the head, never touching the head itself. The oldest
// candidate is the default; the scan then moves on to newer candidates and
// the first one whose number is not a multiple of keep is taken instead.
// The default's own number is not consulted, so a non-milestone root can be
// passed over in favour of a newer non-milestone.
func SelectVictim(track []Version, keep int) (int, error) {
	if len(track) < 2 {
		return -1, fmt.Errorf("%w: track holds %d version(s)", ErrNoRemovableVersion, len(track))
	}
	oldest := len(track) - 1
	if keep <= 0 {
		return oldest, nil
	}

	victim := -1
	for i := oldest; i > 0; i-- {
		n, err := trackNumber(track[i])
		if err != nil {
			return -1, err
		}
		if victim < 0 {
			victim = i
			continue
		}
		if n%keep != 0 {
			return i, nil
		}
	}
	if victim < 0 {
		return -1, fmt.Errorf("%w: no candidate below head %s", ErrNoRemovableVersion, track[0].Label)
	}
	return victim, nil
}

// trackNumber is the label component a version is decimated by: the major
// number on the major track, the minor number on the minor track.
func trackNumber(v Version) (int, error) {
	major, minor, err := ParseLabel(v.Label)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindMajor:
		return major, nil
	case KindMinor:
		return minor, nil
	}
	return 0, fmt.Errorf("%w: version %s has kind %q", ErrInvariantViolation, v.Label, v.Kind)
}

// planTrack simulates dual-track pruning on one track and returns the
// removals in the order they would be issued.
func planTrack(track []Version, limit Track) ([]Version, error) {
	if limit.Max <= 0 || len(track) <= limit.Max {
		return nil, nil
	}
	working := slices.Clone(track)
	var removed []Version
	for len(working) > limit.Max {
		i, err := SelectVictim(working, limit.KeepIntermediate)
		if err != nil {
			return removed, err
		}
		removed = append(removed, working[i])
		working = slices.Delete(working, i, i+1)
	}
	return removed, nil
}
