package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arrowcurve/loadctl/pkg/spec"
)

func TestIssueSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(Options{})
	defer c.Close()

	resp, kind, err := c.Issue(context.Background(), http.MethodGet, srv.URL, nil, nil, time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if kind != "" {
		t.Errorf("kind = %q, want empty on success", kind)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want %q", resp.Body, "hello")
	}
}

func TestIssueConnectionRefused(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	// Port 1 should never have a listener bound in a test sandbox.
	_, kind, err := c.Issue(context.Background(), http.MethodGet, "http://127.0.0.1:1/", nil, nil, time.Second)
	if err == nil {
		t.Fatal("expected an error dialing a closed port")
	}
	if kind != spec.ErrConnectionRefused {
		t.Errorf("kind = %q, want connection_refused", kind)
	}
}

func TestIssueReadTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c := New(Options{})
	defer c.Close()

	_, kind, err := c.Issue(context.Background(), http.MethodGet, srv.URL, nil, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if kind != spec.ErrReadTimeout && kind != spec.ErrConnectTimeout {
		t.Errorf("kind = %q, want read_timeout or connect_timeout", kind)
	}
}

func TestIssueDrainsBodyForValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{})
	defer c.Close()

	resp, _, err := c.Issue(context.Background(), http.MethodPost, srv.URL, map[string]string{"Content-Type": "application/json"}, []byte(`{}`), time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if len(resp.Body) == 0 {
		t.Error("expected fully drained, non-empty body")
	}
}
