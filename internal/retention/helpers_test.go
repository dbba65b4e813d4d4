package retention

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

func minorsOf(labels ...string) []Version {
	out := make([]Version, len(labels))
	for i, l := range labels {
		out[i] = Version{Label: l, Kind: KindMinor}
	}
	return out
}

func majorsOf(labels ...string) []Version {
	out := make([]Version, len(labels))
	for i, l := range labels {
		out[i] = Version{Label: l, Kind: KindMajor}
	}
	return out
}

// conventional marks "N.0" as MAJOR and everything else MINOR.
func conventional(labels ...string) []Version {
	out := make([]Version, len(labels))
	for i, l := range labels {
		kind := KindMinor
		if _, minor, err := ParseLabel(l); err == nil && minor == 0 {
			kind = KindMajor
		}
		out[i] = Version{Label: l, Kind: kind}
	}
	return out
}

func historyOf(versions []Version) *History {
	return &History{NodeID: "node-1", Head: versions[0], Versions: versions}
}

func labelsOf(versions []Version) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.Label
	}
	return out
}

var errBoom = errors.New("boom")

// memHost is an in-memory Host, Notifier and NodeLister.
type memHost struct {
	mu        sync.Mutex
	histories map[string][]Version
	heads     map[string]Version
	failOn    string
	stuck     bool
	reads     int
	deletes   []Version
	listeners []VersionCreatedFunc
}

func newMemHost() *memHost {
	return &memHost{histories: map[string][]Version{}, heads: map[string]Version{}}
}

func (h *memHost) VersionHistory(ctx context.Context, nodeID string) (*History, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	versions := h.histories[nodeID]
	if len(versions) == 0 {
		return nil, nil
	}
	head, ok := h.heads[nodeID]
	if !ok {
		head = versions[0]
	}
	return &History{NodeID: nodeID, Head: head, Versions: slices.Clone(versions)}, nil
}

func (h *memHost) DeleteVersion(ctx context.Context, nodeID string, v Version) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v.Label == h.failOn {
		return fmt.Errorf("delete %s: %w", v.Label, errBoom)
	}
	h.deletes = append(h.deletes, v)
	if h.stuck {
		return nil
	}
	h.histories[nodeID] = slices.DeleteFunc(h.histories[nodeID], func(x Version) bool {
		return x.Label == v.Label
	})
	return nil
}

func (h *memHost) ListVersionedNodes(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []string
	for id, versions := range h.histories {
		if len(versions) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (h *memHost) OnVersionCreated(fn VersionCreatedFunc) {
	h.listeners = append(h.listeners, fn)
}

// commit prepends v to the node's history and fires listeners.
func (h *memHost) commit(ctx context.Context, nodeID string, v Version) error {
	h.mu.Lock()
	h.histories[nodeID] = append([]Version{v}, h.histories[nodeID]...)
	h.mu.Unlock()
	for _, fn := range h.listeners {
		if err := fn(ctx, nodeID, v); err != nil {
			return err
		}
	}
	return nil
}
