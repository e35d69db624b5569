package scraper_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trendgallery/scraper"
)

func TestFetchPostsSendsRunInput(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"shortCode":"abc","ownerUsername":"acme","likesCount":3,"commentsCount":1,"displayUrl":"https://cdn/x.jpg","type":"Image"}]`))
	}))
	defer srv.Close()

	c := scraper.NewClient(srv.URL, "tok", "posts.example.com")
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	posts, err := c.FetchPosts(context.Background(), "acme", since, 120)
	if err != nil {
		t.Fatalf("FetchPosts: %v", err)
	}
	if len(posts) != 1 || posts[0].ShortCode != "abc" {
		t.Fatalf("unexpected posts: %+v", posts)
	}

	if got["directUrls"].([]any)[0] != "https://posts.example.com/acme/" {
		t.Errorf("unexpected directUrls: %v", got["directUrls"])
	}
	if got["resultsType"] != "posts" {
		t.Errorf("unexpected resultsType: %v", got["resultsType"])
	}
	if got["resultsLimit"] != float64(120) {
		t.Errorf("unexpected resultsLimit: %v", got["resultsLimit"])
	}
	if got["onlyPostsNewerThan"] != "2024-01-01" {
		t.Errorf("unexpected onlyPostsNewerThan: %v", got["onlyPostsNewerThan"])
	}
	if got["addParentData"] != false {
		t.Errorf("unexpected addParentData: %v", got["addParentData"])
	}
}

func TestFetchPostsOmitsUnboundedDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]any
		json.NewDecoder(r.Body).Decode(&got)
		if _, ok := got["onlyPostsNewerThan"]; ok {
			t.Error("onlyPostsNewerThan should be omitted when unbounded")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := scraper.NewClient(srv.URL, "", "posts.example.com")
	if _, err := c.FetchPosts(context.Background(), "acme", time.Time{}, 50); err != nil {
		t.Fatalf("FetchPosts: %v", err)
	}
}

func TestFetchPostsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := scraper.NewClient(srv.URL, "", "posts.example.com")
	_, err := c.FetchPosts(context.Background(), "acme", time.Time{}, 50)
	if !errors.Is(err, scraper.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPostLimit(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		since time.Time
		want  int
	}{
		{time.Time{}, 200},                                    // unbounded
		{now.AddDate(0, 0, -2), 50},                           // floor
		{now.AddDate(0, 0, -30), 310},                         // 31 days * 10
		{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 2000},   // cap
		{now, 50},                                             // same day
	}
	for _, tt := range tests {
		if got := scraper.PostLimit(tt.since, now); got != tt.want {
			t.Errorf("PostLimit(%v) = %d, want %d", tt.since, got, tt.want)
		}
	}
}
