package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lazypower/verkeep/internal/retention"
)

func testNode(t *testing.T, db *DB, name string) *Node {
	t.Helper()
	node, err := db.CreateNode(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	return node
}

func commit(t *testing.T, db *DB, nodeID string, kinds ...retention.Kind) []string {
	t.Helper()
	var labels []string
	for _, k := range kinds {
		rec, err := db.CreateVersion(context.Background(), nodeID, k, "")
		if err != nil {
			t.Fatalf("CreateVersion(%s): %v", k, err)
		}
		labels = append(labels, rec.Label)
	}
	return labels
}

func historyLabels(t *testing.T, db *DB, nodeID string) []string {
	t.Helper()
	h, err := db.VersionHistory(context.Background(), nodeID)
	if err != nil {
		t.Fatalf("VersionHistory: %v", err)
	}
	if h == nil {
		return nil
	}
	var labels []string
	for _, v := range h.Versions {
		labels = append(labels, v.Label)
	}
	return labels
}

const (
	major = retention.KindMajor
	minor = retention.KindMinor
)

func TestCreateVersionNumbering(t *testing.T) {
	tests := []struct {
		name  string
		kinds []retention.Kind
		want  []string
	}{
		{"major first", []retention.Kind{major, minor, minor, major, minor}, []string{"1.0", "1.1", "1.2", "2.0", "2.1"}},
		{"minor first", []retention.Kind{minor, minor, major}, []string{"0.1", "0.2", "1.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			node := testNode(t, db, "doc")
			got := commit(t, db, node.ID, tt.kinds...)
			if !slices.Equal(got, tt.want) {
				t.Errorf("labels = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateVersionUnknownNode(t *testing.T) {
	db := testDB(t)
	_, err := db.CreateVersion(context.Background(), "missing", major, "")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("error = %v, want ErrNodeNotFound", err)
	}
}

func TestCreateVersionBadKind(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")
	_, err := db.CreateVersion(context.Background(), node.ID, "PATCH", "")
	if !errors.Is(err, retention.ErrInvariantViolation) {
		t.Errorf("error = %v, want ErrInvariantViolation", err)
	}
}

func TestVersionHistoryHeadFirst(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")
	commit(t, db, node.ID, major, minor, minor)

	h, err := db.VersionHistory(context.Background(), node.ID)
	if err != nil {
		t.Fatalf("VersionHistory: %v", err)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if h.Head.Label != "1.2" {
		t.Errorf("Head = %s, want 1.2", h.Head.Label)
	}
	if h.Root() != (retention.Version{Label: "1.0", Kind: major}) {
		t.Errorf("Root = %v, want 1.0 (MAJOR)", h.Root())
	}
}

func TestVersionHistoryAbsent(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")

	h, err := db.VersionHistory(context.Background(), node.ID)
	if err != nil {
		t.Fatalf("VersionHistory: %v", err)
	}
	if h != nil {
		t.Errorf("history = %+v, want nil", h)
	}
}

func TestDeleteVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	node := testNode(t, db, "doc")
	commit(t, db, node.ID, major, minor, minor)

	if err := db.DeleteVersion(ctx, node.ID, retention.Version{Label: "1.1", Kind: minor}); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if got := historyLabels(t, db, node.ID); !slices.Equal(got, []string{"1.2", "1.0"}) {
		t.Errorf("history = %v, want [1.2 1.0]", got)
	}

	err := db.DeleteVersion(ctx, node.ID, retention.Version{Label: "1.1", Kind: minor})
	if !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
}

func TestListVersionedNodes(t *testing.T) {
	db := testDB(t)
	a := testNode(t, db, "a")
	testNode(t, db, "empty")
	c := testNode(t, db, "c")
	commit(t, db, a.ID, major)
	commit(t, db, c.ID, minor, minor)

	ids, err := db.ListVersionedNodes(context.Background())
	if err != nil {
		t.Fatalf("ListVersionedNodes: %v", err)
	}
	want := []string{a.ID, c.ID}
	slices.Sort(want)
	if !slices.Equal(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestOnVersionCreatedSeesCommittedVersion(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")

	var seen []string
	db.OnVersionCreated(func(ctx context.Context, nodeID string, v retention.Version) error {
		h, err := db.VersionHistory(ctx, nodeID)
		if err != nil {
			return err
		}
		if h == nil || h.Head != v {
			t.Errorf("subscriber saw head %v, want %v", h, v)
		}
		seen = append(seen, v.Label)
		return nil
	})

	commit(t, db, node.ID, major, minor)
	if !slices.Equal(seen, []string{"1.0", "1.1"}) {
		t.Errorf("notifications = %v, want [1.0 1.1]", seen)
	}
}

func TestOnVersionCreatedErrorKeepsVersion(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")
	boom := errors.New("boom")
	db.OnVersionCreated(func(context.Context, string, retention.Version) error { return boom })

	rec, err := db.CreateVersion(context.Background(), node.ID, major, "")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if rec == nil || rec.Label != "1.0" {
		t.Errorf("record = %+v, want label 1.0", rec)
	}
	if got := historyLabels(t, db, node.ID); !slices.Equal(got, []string{"1.0"}) {
		t.Errorf("history = %v, want [1.0]", got)
	}
}

func TestCreateVersionSerializedPerNode(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")

	var active atomic.Int32
	db.OnVersionCreated(func(context.Context, string, retention.Version) error {
		if active.Add(1) > 1 {
			t.Error("concurrent notifications for the same node")
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.CreateVersion(context.Background(), node.ID, minor, ""); err != nil {
				t.Errorf("CreateVersion: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := historyLabels(t, db, node.ID); len(got) != 8 || got[0] != "0.8" {
		t.Errorf("history = %v, want 8 versions headed by 0.8", got)
	}
}

func TestRetentionBoundToStore(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")

	policy := retention.Policy{
		Major: retention.Track{Max: 2},
		Minor: retention.Track{Max: 3, KeepIntermediate: 2},
	}
	retention.NewPruner(db, policy).Bind(db)

	commit(t, db, node.ID, major, minor, minor, minor, minor, minor, major, minor, major)

	want := []string{"3.0", "2.1", "2.0", "1.4", "1.2"}
	if got := historyLabels(t, db, node.ID); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestFlatRetentionBoundToStore(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")
	retention.NewPruner(db, retention.Policy{MaxVersions: 3}).Bind(db)

	for i := 0; i < 10; i++ {
		commit(t, db, node.ID, minor)
	}

	want := []string{"0.10", "0.9", "0.8"}
	if got := historyLabels(t, db, node.ID); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestPruneSerializedWithCreateVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "verkeep.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	node := testNode(t, db, "doc")
	p := retention.NewPruner(db, retention.Policy{MaxVersions: 2})
	p.Bind(db)

	done := make(chan struct{})
	var (
		wg        sync.WaitGroup
		pruneErrs []error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			err := db.WithNodeLock(node.ID, func() error {
				_, err := p.Prune(ctx, node.ID)
				return err
			})
			if err != nil {
				pruneErrs = append(pruneErrs, err)
			}
		}
	}()

	var commitErrs []error
	for i := 0; i < 150; i++ {
		if _, err := db.CreateVersion(ctx, node.ID, minor, ""); err != nil {
			commitErrs = append(commitErrs, err)
		}
	}
	close(done)
	wg.Wait()

	if len(commitErrs) > 0 {
		t.Errorf("%d commits failed, first: %v", len(commitErrs), commitErrs[0])
	}
	if len(pruneErrs) > 0 {
		t.Errorf("%d prunes failed, first: %v", len(pruneErrs), pruneErrs[0])
	}
	if got := historyLabels(t, db, node.ID); !slices.Equal(got, []string{"0.150", "0.149"}) {
		t.Errorf("history = %v, want [0.150 0.149]", got)
	}
}

func TestWithNodeLockExcludesCreateVersion(t *testing.T) {
	db := testDB(t)
	node := testNode(t, db, "doc")

	created := make(chan struct{})
	err := db.WithNodeLock(node.ID, func() error {
		go func() {
			db.CreateVersion(context.Background(), node.ID, major, "")
			close(created)
		}()
		select {
		case <-created:
			t.Error("CreateVersion ran while the node lock was held")
		case <-time.After(50 * time.Millisecond):
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithNodeLock: %v", err)
	}
	<-created
}
