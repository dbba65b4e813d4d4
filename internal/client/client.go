package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lazypower/verkeep/internal/retention"
	"github.com/lazypower/verkeep/internal/store"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 10 * time.Second
)

// Client talks to the verkeep server.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a new HTTP client.
// Respects VERKEEP_URL env var, falls back to http://127.0.0.1:37778.
func NewClient() *Client {
	u := os.Getenv("VERKEEP_URL")
	if u == "" {
		u = defaultServerURL
	}
	return New(u, &http.Client{Timeout: httpTimeout})
}

// New creates a client for serverURL using hc.
func New(serverURL string, hc *http.Client) *Client {
	return &Client{http: hc, serverURL: serverURL}
}

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := string(bytes.TrimSpace(data))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return data, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
	}
	return data, nil
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete sends a DELETE request. Returns response body.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Get(ctx, "/api/health")
	return err == nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	data, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	data, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func nodePath(ref string) string {
	return "/api/nodes/" + url.PathEscape(ref)
}

// CreateNode registers a new node.
func (c *Client) CreateNode(ctx context.Context, name string) (*store.Node, error) {
	var n store.Node
	if err := c.postJSON(ctx, "/api/nodes", map[string]string{"name": name}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNodes returns all nodes.
func (c *Client) ListNodes(ctx context.Context) ([]store.Node, error) {
	var body struct {
		Nodes []store.Node `json:"nodes"`
	}
	if err := c.getJSON(ctx, "/api/nodes", &body); err != nil {
		return nil, err
	}
	return body.Nodes, nil
}

// Versions returns a node's history, most recent first. ref is a node ID or name.
func (c *Client) Versions(ctx context.Context, ref string) ([]store.VersionRecord, error) {
	var body struct {
		Versions []store.VersionRecord `json:"versions"`
	}
	if err := c.getJSON(ctx, nodePath(ref)+"/versions", &body); err != nil {
		return nil, err
	}
	return body.Versions, nil
}

// Commit records a new version on the node; the server prunes afterwards.
// When the version was stored but retention failed, the stored record is
// returned together with the error.
func (c *Client) Commit(ctx context.Context, ref string, kind retention.Kind, comment string) (*store.VersionRecord, error) {
	body, err := json.Marshal(map[string]string{"kind": string(kind), "comment": comment})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	data, err := c.Post(ctx, nodePath(ref)+"/versions", body)
	if err != nil {
		var failed struct {
			Version *store.VersionRecord `json:"version"`
		}
		if data != nil && json.Unmarshal(data, &failed) == nil && failed.Version != nil {
			return failed.Version, err
		}
		return nil, err
	}

	var rec store.VersionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	return &rec, nil
}

// DeleteVersion removes one version by label.
func (c *Client) DeleteVersion(ctx context.Context, ref, label string) error {
	_, err := c.Delete(ctx, nodePath(ref)+"/versions/"+url.PathEscape(label))
	return err
}

// Plan reports what a prune would delete.
func (c *Client) Plan(ctx context.Context, ref string) ([]retention.Version, error) {
	var body struct {
		Deletions []retention.Version `json:"deletions"`
	}
	if err := c.getJSON(ctx, nodePath(ref)+"/plan", &body); err != nil {
		return nil, err
	}
	return body.Deletions, nil
}

// Prune enforces the server's policy on the node.
func (c *Client) Prune(ctx context.Context, ref string) ([]retention.Version, error) {
	var body struct {
		Deleted []retention.Version `json:"deleted"`
	}
	if err := c.postJSON(ctx, nodePath(ref)+"/prune", nil, &body); err != nil {
		return nil, err
	}
	return body.Deleted, nil
}
