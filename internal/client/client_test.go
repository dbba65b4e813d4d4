package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/lazypower/verkeep/internal/retention"
	"github.com/lazypower/verkeep/internal/server"
	"github.com/lazypower/verkeep/internal/store"
)

func testClient(t *testing.T, policy retention.Policy) *Client {
	t.Helper()
	c, _ := testClientDB(t, policy)
	return c
}

func testClientDB(t *testing.T, policy retention.Policy) (*Client, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pruner := retention.NewPruner(db, policy)
	pruner.Bind(db)
	ts := httptest.NewServer(server.New(db, pruner, "test", nil))
	t.Cleanup(ts.Close)
	return New(ts.URL, ts.Client()), db
}

func TestNewClientRespectsEnv(t *testing.T) {
	t.Setenv("VERKEEP_URL", "http://example.test:1234")
	if c := NewClient(); c.serverURL != "http://example.test:1234" {
		t.Errorf("serverURL = %q", c.serverURL)
	}

	t.Setenv("VERKEEP_URL", "")
	if c := NewClient(); c.serverURL != defaultServerURL {
		t.Errorf("serverURL = %q, want default", c.serverURL)
	}
}

func TestHealthy(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, retention.Policy{})
	if !c.Healthy(ctx) {
		t.Error("expected healthy server")
	}

	down := New("http://127.0.0.1:1", &http.Client{})
	if down.Healthy(ctx) {
		t.Error("expected unreachable server to be unhealthy")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := testClient(t, retention.Policy{MaxVersions: 2})

	n, err := c.CreateNode(ctx, "report")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	for _, k := range []retention.Kind{retention.KindMajor, retention.KindMinor, retention.KindMinor} {
		if _, err := c.Commit(ctx, "report", k, ""); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	versions, err := c.Versions(ctx, n.ID)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	var labels []string
	for _, v := range versions {
		labels = append(labels, v.Label)
	}
	if !slices.Equal(labels, []string{"1.2", "1.1"}) {
		t.Errorf("labels = %v, want [1.2 1.1]", labels)
	}

	plan, err := c.Plan(ctx, n.ID)
	if err != nil || len(plan) != 0 {
		t.Errorf("Plan = %v, %v; want nothing to delete", plan, err)
	}
	deleted, err := c.Prune(ctx, n.ID)
	if err != nil || len(deleted) != 0 {
		t.Errorf("Prune = %v, %v; want nothing deleted", deleted, err)
	}

	if err := c.DeleteVersion(ctx, n.ID, "1.1"); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	nodes, err := c.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].VersionCount != 1 {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestStatusError(t *testing.T) {
	c := testClient(t, retention.Policy{})

	_, err := c.Versions(context.Background(), "missing")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", se.Code)
	}
	if se.Message == "" {
		t.Error("expected server error message")
	}
}

func TestCommitKeepsVersionWhenRetentionFails(t *testing.T) {
	ctx := context.Background()
	c, db := testClientDB(t, retention.Policy{Minor: retention.Track{Max: 1, KeepIntermediate: 1}})

	n, err := c.CreateNode(ctx, "doc")
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	// an unparseable label below the head makes the post-commit prune fail
	if _, err := db.ExecContext(ctx,
		`INSERT INTO versions (node_id, label, major, minor, kind, created_at) VALUES (?, '0.x', 0, 0, 'MINOR', 0)`,
		n.ID); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := c.Commit(ctx, n.ID, retention.KindMinor, "")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("error = %v, want 500 StatusError", err)
	}
	if rec == nil || rec.Label != "0.1" {
		t.Fatalf("record = %+v, want stored version 0.1", rec)
	}

	versions, err := c.Versions(ctx, n.ID)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 2 || versions[0].Label != "0.1" {
		t.Errorf("versions = %+v, want 0.1 stored as head", versions)
	}
}
