package ingest

import (
	"testing"
	"time"
)

func validPost() map[string]any {
	return map[string]any{
		"url":                   "https://i.example.com/abc.jpg",
		"title":                 "A good meme",
		"created_utc":           float64(1748736000),
		"score":                 float64(1234),
		"num_comments":          float64(56),
		"subreddit_subscribers": float64(900000),
		"thumbnail":             "https://thumbs.example.com/abc.jpg",
		"preview":               map[string]any{},
	}
}

func TestBuildObservationValidPost(t *testing.T) {
	observedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	obs, ok := buildObservation(validPost(), "memes", observedAt)
	if !ok {
		t.Fatal("Expected valid post to build an observation")
	}

	if obs.Locator != "https://i.example.com/abc.jpg" {
		t.Errorf("Unexpected locator: %s", obs.Locator)
	}
	if obs.Score != 1234 {
		t.Errorf("Expected score 1234, got %d", obs.Score)
	}
	if obs.CommentCount != 56 {
		t.Errorf("Expected 56 comments, got %d", obs.CommentCount)
	}
	if obs.Community != "memes" {
		t.Errorf("Expected community 'memes', got %s", obs.Community)
	}
	if !obs.ObservedAt.Equal(observedAt) {
		t.Errorf("Unexpected observedAt: %v", obs.ObservedAt)
	}
	if obs.CreatedAt.IsZero() {
		t.Error("CreatedAt should be derived from created_utc")
	}
}

func TestBuildObservationMalformedPosts(t *testing.T) {
	observedAt := time.Now()

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing url", func(p map[string]any) { delete(p, "url") }},
		{"missing title", func(p map[string]any) { delete(p, "title") }},
		{"missing created_utc", func(p map[string]any) { delete(p, "created_utc") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			post := validPost()
			tc.mutate(post)

			if _, ok := buildObservation(post, "memes", observedAt); ok {
				t.Error("Malformed post should be skipped")
			}
		})
	}
}

func TestDownloadableHeuristics(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
		want   bool
	}{
		{"still image", func(p map[string]any) {}, true},
		{"no thumbnail", func(p map[string]any) { p["thumbnail"] = "" }, false},
		{"no preview", func(p map[string]any) { delete(p, "preview") }, false},
		{"text post", func(p map[string]any) { p["url"] = "https://www.reddit.com/r/memes/comments/1" }, false},
		{"hosted video", func(p map[string]any) { p["url"] = "https://v.redd.it/xyz" }, false},
		{"youtube link", func(p map[string]any) { p["url"] = "https://www.youtube.com/watch?v=1" }, false},
		{"gif", func(p map[string]any) { p["url"] = "https://i.example.com/a.gif" }, false},
		{"gifv", func(p map[string]any) { p["url"] = "https://i.example.com/a.gifv" }, false},
		{"embedded video", func(p map[string]any) {
			p["secure_media"] = map[string]any{"reddit_video": map[string]any{}}
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			post := validPost()
			tc.mutate(post)

			if got := downloadable(post); got != tc.want {
				t.Errorf("Expected downloadable=%v, got %v", tc.want, got)
			}
		})
	}
}
