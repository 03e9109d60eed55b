package plain

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "choir-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><head><title>Doc</title></head><body><article><h1>Doc</h1>
<p>The quick brown fox jumps over the lazy dog and keeps running through the field until sunset.</p>
<p>Another paragraph with enough words to look like an article for the readability heuristics.</p></article></body></html>`)
	}))
	defer srv.Close()

	res, err := Fetch{UserAgent: "choir-test"}.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !strings.Contains(res.Markdown, "quick brown fox") || res.Status != 200 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFetchPlainTextTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()

	res, err := Fetch{MaxChars: 4}.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Markdown != "0123" {
		t.Fatalf("expected truncated body, got %q", res.Markdown)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := (Fetch{}).Exec(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := (Fetch{}).Exec(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
