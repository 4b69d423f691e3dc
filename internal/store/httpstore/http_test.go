package httpstore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/discochess/cachesim/internal/codec"
	"github.com/discochess/cachesim/internal/store"
)

func TestStore_ReadTrace(t *testing.T) {
	raw := []byte("0,1,100\n1,2,200\n")
	zst, err := codec.Encode(codec.NewZstd(), raw)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/archive/cdn.csv.zst":
			w.Write(zst)
		case "/archive/broken.csv":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := New(srv.URL+"/archive", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	got, err := s.ReadTrace(ctx, "cdn.csv.zst")
	if err != nil {
		t.Fatalf("ReadTrace() error = %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("ReadTrace() = %q, want %q", got, raw)
	}

	if _, err := s.ReadTrace(ctx, "missing.csv"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTrace(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadTrace(ctx, "broken.csv"); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTrace(broken) error = %v, want a status error", err)
	}
}

func TestNew_RejectsScheme(t *testing.T) {
	if _, err := New("ftp://example.com/traces"); err == nil {
		t.Error("New(ftp://) succeeded, want error")
	}
}
