package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckSource_ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	ctx := context.Background()
	if err := CheckSource(ctx, srv.URL); err != nil {
		t.Fatalf("CheckSource: %v", err)
	}
}

func TestCheckSource_badStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	ctx := context.Background()
	if err := CheckSource(ctx, srv.URL); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestCheckSource_emptyURL(t *testing.T) {
	ctx := context.Background()
	if err := CheckSource(ctx, ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
