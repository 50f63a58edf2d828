package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

func newTestServer(t *testing.T) (*Server, *bufferpool.Pool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.db")
	dm, err := storage.NewDiskManager(path)
	if err != nil {
		t.Fatalf("Failed to create disk manager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	pool := bufferpool.New(8, 4, dm, nil)

	cfg := DefaultConfig()
	cfg.EnableLogging = false
	cfg.EnableGraphQL = true
	srv, err := New(cfg, pool, dm)
	if err != nil {
		t.Fatalf("Failed to create admin server: %v", err)
	}
	return srv, pool
}

func doJSON(t *testing.T, srv *Server, method, target string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if len(rec.Body.Bytes()) > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s returned invalid JSON: %v\n%s", method, target, err, rec.Body.String())
		}
	}
	return rec.Code, decoded
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := doJSON(t, srv, "GET", "/health", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	result := body["result"].(map[string]interface{})
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, pool := newTestServer(t)

	page, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	defer pool.UnpinPage(page.ID, false)

	code, body := doJSON(t, srv, "GET", "/stats", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	result := body["result"].(map[string]interface{})
	poolStats := result["pool"].(map[string]interface{})
	if poolStats["pool_size"].(float64) != 8 {
		t.Errorf("expected pool_size 8, got %v", poolStats["pool_size"])
	}
	if poolStats["pinned_frames"].(float64) != 1 {
		t.Errorf("expected 1 pinned frame, got %v", poolStats["pinned_frames"])
	}
	if _, ok := result["disk"]; !ok {
		t.Error("expected disk stats in the response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("pagecache_pool_frames")) {
		t.Error("metrics exposition missing pool gauge")
	}
}

func TestPageLifecycleOverHTTP(t *testing.T) {
	srv, pool := newTestServer(t)

	// Seed a page through the pool API, as a real consumer would.
	page, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	id := page.ID
	copy(page.Data, []byte("console"))
	if err := pool.UnpinPage(id, true); err != nil {
		t.Fatalf("UnpinPage failed: %v", err)
	}

	// Frame info.
	code, body := doJSON(t, srv, "GET", fmt.Sprintf("/pages/%d", id), nil)
	if code != http.StatusOK {
		t.Fatalf("frame info: expected 200, got %d", code)
	}
	result := body["result"].(map[string]interface{})
	if result["resident"] != true || result["dirty"] != true {
		t.Errorf("unexpected frame info: %v", result)
	}

	// Flush clears the dirty bit.
	code, _ = doJSON(t, srv, "POST", fmt.Sprintf("/pages/%d/flush", id), nil)
	if code != http.StatusOK {
		t.Fatalf("flush: expected 200, got %d", code)
	}
	if _, dirty, _ := pool.FrameInfo(id); dirty {
		t.Error("flush over HTTP did not clear the dirty bit")
	}

	// Warm fetch leaves no pin behind.
	code, _ = doJSON(t, srv, "POST", fmt.Sprintf("/pages/%d/fetch", id), nil)
	if code != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d", code)
	}
	if pin, _, _ := pool.FrameInfo(id); pin != 0 {
		t.Errorf("warm fetch leaked a pin: %d", pin)
	}

	// Delete.
	code, _ = doJSON(t, srv, "DELETE", fmt.Sprintf("/pages/%d", id), nil)
	if code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", code)
	}
	if _, _, resident := pool.FrameInfo(id); resident {
		t.Error("deleted page still resident")
	}
}

func TestErrorMapping(t *testing.T) {
	srv, pool := newTestServer(t)

	// Flushing a non-resident page is 404.
	code, _ := doJSON(t, srv, "POST", "/pages/42/flush", nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for non-resident flush, got %d", code)
	}

	// Deleting a pinned page is 409.
	page, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	code, _ = doJSON(t, srv, "DELETE", fmt.Sprintf("/pages/%d", page.ID), nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for pinned delete, got %d", code)
	}

	// Unpinning an already-unpinned page is 409, not a crash.
	if err := pool.UnpinPage(page.ID, false); err != nil {
		t.Fatalf("UnpinPage failed: %v", err)
	}
	code, _ = doJSON(t, srv, "POST", fmt.Sprintf("/pages/%d/unpin", page.ID), nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for double unpin, got %d", code)
	}

	// Garbage page ids are 400.
	code, _ = doJSON(t, srv, "GET", "/pages/banana", nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed id, got %d", code)
	}
}

func TestGraphQLQueries(t *testing.T) {
	srv, pool := newTestServer(t)

	page, err := pool.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}
	id := page.ID

	query := fmt.Sprintf(`{
		poolStats { pinnedFrames freeFrames }
		directoryStats { globalDepth numBuckets }
		frame(pageId: %d) { pageId pinCount dirty }
	}`, id)
	payload, _ := json.Marshal(map[string]string{"query": query})

	code, body := doJSON(t, srv, "POST", "/graphql", payload)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if errs, ok := body["errors"]; ok {
		t.Fatalf("graphql errors: %v", errs)
	}

	data := body["data"].(map[string]interface{})
	poolStats := data["poolStats"].(map[string]interface{})
	if poolStats["pinnedFrames"].(float64) != 1 {
		t.Errorf("expected 1 pinned frame, got %v", poolStats["pinnedFrames"])
	}
	frame := data["frame"].(map[string]interface{})
	if frame["pinCount"].(float64) != 1 {
		t.Errorf("expected pin count 1, got %v", frame["pinCount"])
	}

	// A non-resident page resolves to null, not an error.
	query = `{ frame(pageId: 9999) { pageId } }`
	payload, _ = json.Marshal(map[string]string{"query": query})
	code, body = doJSON(t, srv, "POST", "/graphql", payload)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	data = body["data"].(map[string]interface{})
	if data["frame"] != nil {
		t.Errorf("expected null frame, got %v", data["frame"])
	}
}
