package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ulikunitz/xz"
)

func xzCompress(t *testing.T, plain string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := w.Write([]byte(plain)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestOpenDecompressesXZStream(t *testing.T) {
	plain := `{"Filmliste":[0],"X":["A","T","Title"]}`
	compressed := xzCompress(t, plain)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(compressed)
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL, false, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != plain {
		t.Fatalf("decompressed = %q, want %q", got, plain)
	}
}

func TestOpenRejectsNonHTTPURL(t *testing.T) {
	if _, err := Open(context.Background(), "file:///etc/passwd", false, false); err == nil {
		t.Fatal("expected error for non-http(s) url")
	}
}

func TestOpenErrorsOnNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := Open(context.Background(), srv.URL, false, false); err == nil {
		t.Fatal("expected error for 404 response")
	}
}
