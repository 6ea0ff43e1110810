package fetchhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/copperbox/depsera/internal/pollerr"
)

func TestFetchReturnsBodyAndStatusOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(nil)
	resp, err := f.Fetch(context.Background(), srv.URL, 5*time.Second, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", resp.Body)
	}
	if resp.Truncated {
		t.Error("did not expect truncation")
	}
}

func TestFetchTruncatesOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := New(nil)
	resp, err := f.Fetch(context.Background(), srv.URL, 5*time.Second, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !resp.Truncated {
		t.Error("expected truncation")
	}
	if len(resp.Body) != 10 {
		t.Errorf("expected body capped to 10 bytes, got %d", len(resp.Body))
	}
	if resp.OversizeWarning == "" {
		t.Error("expected an oversize warning")
	}
}

func TestFetchReturnsNonNilResponseForErrorStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(nil)
	resp, err := f.Fetch(context.Background(), srv.URL, 5*time.Second, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 surfaced as a Response, not an error, got status %d", resp.Status)
	}
}

func TestFetchTimeoutClassifiesAsKindTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(nil)
	_, err := f.Fetch(context.Background(), srv.URL, 5*time.Millisecond, 0)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	pe := pollerr.As(err)
	if pe == nil {
		t.Fatalf("expected a *pollerr.Error, got %T", err)
	}
	if pe.Kind != pollerr.KindTimeout {
		t.Errorf("expected KindTimeout, got %v", pe.Kind)
	}
}

func TestFetchDNSFailureClassifiesAsKindDNSFailed(t *testing.T) {
	f := New(nil)
	_, err := f.Fetch(context.Background(), "http://this-host-does-not-resolve.invalid", 2*time.Second, 0)
	if err == nil {
		t.Fatal("expected a DNS resolution error")
	}
	if !pollerr.Is(err, pollerr.KindDNSFailed) {
		pe := pollerr.As(err)
		t.Fatalf("expected KindDNSFailed, got %v (err=%v)", pe, err)
	}
}

func TestFetchConnectionRefusedClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.Listener.Addr().String()
	srv.Close() // closed listener: nothing is listening on addr now

	f := New(nil)
	_, err := f.Fetch(context.Background(), "http://"+addr, 2*time.Second, 0)
	if err == nil {
		t.Fatal("expected a connection-refused error")
	}
	pe := pollerr.As(err)
	if pe == nil {
		t.Fatalf("expected a *pollerr.Error, got %T", err)
	}
	if pe.Kind != pollerr.KindConnectRefused {
		t.Errorf("expected KindConnectRefused, got %v", pe.Kind)
	}
}
