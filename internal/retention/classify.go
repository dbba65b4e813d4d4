package retention

import "fmt"

// Classify splits versions into majors and minors, keeping head-to-root order
// within each.
func Classify(versions []Version) (majors, minors []Version, err error) {
	for _, v := range versions {
		switch v.Kind {
		case KindMajor:
			majors = append(majors, v)
		case KindMinor:
			minors = append(minors, v)
		default:
			return nil, nil, fmt.Errorf("%w: version %s has kind %q", ErrInvariantViolation, v.Label, v.Kind)
		}
	}
	return majors, minors, nil
}
