package captioner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestCaptionParsesResponse(t *testing.T) {
	srv := chatServer(t, `{"name":"Retro Shirt Mockup","description":"A detailed mockup.","keywords":["shirt","mockup","psd"]}`)
	defer srv.Close()

	c := New(srv.URL, "test-key", "gpt-4o-mini", time.Second)
	meta, err := c.Caption(context.Background(), Request{
		ImageURL:         "https://cdn.example.com/images/shirt.jpg",
		DownloadFileName: "shirt.zip",
		CategoryName:     "PSD LAB",
	})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if meta.Name != "Retro Shirt Mockup" {
		t.Fatalf("unexpected name %q", meta.Name)
	}
	if len(meta.Keywords) != 3 || meta.Keywords[1] != "mockup" {
		t.Fatalf("unexpected keywords %v", meta.Keywords)
	}
}

func TestCaptionNormalizesStringKeywords(t *testing.T) {
	srv := chatServer(t, `{"name":"Poster","description":"d","keywords":"poster, print , wall art"}`)
	defer srv.Close()

	c := New(srv.URL, "k", "m", time.Second)
	meta, err := c.Caption(context.Background(), Request{DownloadFileName: "poster.zip", CategoryName: "Prints"})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	want := []string{"poster", "print", "wall art"}
	if len(meta.Keywords) != len(want) {
		t.Fatalf("unexpected keywords %v", meta.Keywords)
	}
	for i := range want {
		if meta.Keywords[i] != want[i] {
			t.Fatalf("keyword %d: got %q, want %q", i, meta.Keywords[i], want[i])
		}
	}
}

func TestCaptionFallsBackOnMalformedResponse(t *testing.T) {
	srv := chatServer(t, "this is not json at all")
	defer srv.Close()

	c := New(srv.URL, "k", "m", time.Second)
	meta, err := c.Caption(context.Background(), Request{
		DownloadFileName: "summer-beach_vibes.zip",
		CategoryName:     "IMAGES",
	})
	if err != nil {
		t.Fatalf("fallback must not propagate an error, got %v", err)
	}
	if meta.Name != "Summer Beach Vibes" {
		t.Fatalf("unexpected fallback name %q", meta.Name)
	}
	if len(meta.Keywords) == 0 || meta.Keywords[0] != "images" {
		t.Fatalf("fallback keywords should start with the category, got %v", meta.Keywords)
	}
}

func TestCaptionFallsBackWhenDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "m", time.Second)
	meta, err := c.Caption(context.Background(), Request{DownloadFileName: "icons.zip", CategoryName: "VECTOR'S"})
	if err != nil {
		t.Fatalf("outage must degrade, not error: %v", err)
	}
	if meta.Name != "Icons" {
		t.Fatalf("unexpected fallback name %q", meta.Name)
	}
}

func TestFallbackHandlesEmptyName(t *testing.T) {
	meta := Fallback(".zip", "Packaging")
	if meta.Name != "Product" {
		t.Fatalf("expected generic product name, got %q", meta.Name)
	}
}
