package retention

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a version as major or minor.
type Kind string

const (
	KindMajor Kind = "MAJOR"
	KindMinor Kind = "MINOR"
)

// ParseKind accepts "major"/"minor" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindMajor:
		return KindMajor, nil
	case KindMinor:
		return KindMinor, nil
	}
	return "", fmt.Errorf("%w: unknown version kind %q", ErrInvariantViolation, s)
}

// Version is one immutable entry in a node's history.
type Version struct {
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

func (v Version) String() string {
	return fmt.Sprintf("%s (%s)", v.Label, v.Kind)
}

// ParseLabel splits a "<major>.<minor>" label into its two numbers.
func ParseLabel(label string) (major, minor int, err error) {
	before, after, ok := strings.Cut(label, ".")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q has no separator", ErrMalformedLabel, label)
	}
	major, err = parseComponent(before)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q major: %v", ErrMalformedLabel, label, err)
	}
	minor, err = parseComponent(after)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q minor: %v", ErrMalformedLabel, label, err)
	}
	return major, minor, nil
}

func parseComponent(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative component %d", n)
	}
	return n, nil
}

// FormatLabel is the inverse of ParseLabel.
func FormatLabel(major, minor int) string {
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}

// History is a node's version chain, most recent first.
type History struct {
	NodeID   string    `json:"node_id"`
	Head     Version   `json:"head"`
	Versions []Version `json:"versions"`
}

// Len returns the number of versions in the history.
func (h *History) Len() int {
	return len(h.Versions)
}

// Root returns the least recent version.
func (h *History) Root() Version {
	return h.Versions[len(h.Versions)-1]
}

// Validate checks the chain invariants: non-empty and led by the head.
func (h *History) Validate() error {
	if len(h.Versions) == 0 {
		return fmt.Errorf("%w: empty history for node %s", ErrInvariantViolation, h.NodeID)
	}
	if h.Versions[0] != h.Head {
		return fmt.Errorf("%w: node %s head %s does not lead history (first is %s)",
			ErrInvariantViolation, h.NodeID, h.Head.Label, h.Versions[0].Label)
	}
	return nil
}
