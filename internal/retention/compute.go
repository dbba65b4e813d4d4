package retention

// ComputeDeletions returns the versions the policy would delete from h, in
// deletion order. A nil history yields no deletions.
func ComputeDeletions(h *History, p Policy) ([]Version, error) {
	if h == nil {
		return nil, nil
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	switch p.Mode() {
	case ModeFlat:
		return planFlat(h.Versions, p.MaxVersions), nil
	case ModeDual:
		majors, minors, err := Classify(h.Versions)
		if err != nil {
			return nil, err
		}
		removed, err := planTrack(majors, p.Major)
		if err != nil {
			return nil, err
		}
		minorRemoved, err := planTrack(minors, p.Minor)
		if err != nil {
			return nil, err
		}
		return append(removed, minorRemoved...), nil
	}
	return nil, nil
}

// planFlat returns every version past the first max, root first.
func planFlat(versions []Version, max int) []Version {
	if max <= 0 || len(versions) <= max {
		return nil
	}
	excess := versions[max:]
	removed := make([]Version, 0, len(excess))
	for i := len(excess) - 1; i >= 0; i-- {
		removed = append(removed, excess[i])
	}
	return removed
}
