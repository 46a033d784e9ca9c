package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialogd/internal/coordinator"
	"dialogd/internal/engine/enginetest"
	"dialogd/internal/httpapi"
)

func newServer(t *testing.T, eng *enginetest.Engine, mutate func(*coordinator.Config)) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()
	cfg := coordinator.Config{Engine: eng, MaxWait: time.Second, DrainTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := coordinator.New(cfg)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(c))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return srv, c
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func lines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

// generate posts a prompt and returns the final ndjson line.
func generate(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, b := do(t, http.MethodPost, url+"/generate", body)
	if resp.StatusCode != http.StatusOK {
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		return resp.StatusCode, m
	}
	ls := lines(t, b)
	if len(ls) == 0 {
		t.Fatalf("empty stream")
	}
	return resp.StatusCode, ls[len(ls)-1]
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("w ", n))
}
