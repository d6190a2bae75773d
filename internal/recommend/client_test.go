package recommend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fpang/moodmatch/internal/workflow"
)

const spotifyBody = `{"tracks": [
  {"id": "t1", "name": "Hype Boy", "artists": [{"name": "NewJeans"}],
   "album": {"images": [{"url": "https://i.scdn.co/1.jpg"}, {"url": "https://i.scdn.co/2.jpg"}]},
   "preview_url": "https://p.scdn.co/1.mp3",
   "external_urls": {"spotify": "https://open.spotify.com/track/t1"}},
  {"name": "No ID", "external_urls": {"spotify": "https://open.spotify.com/track/t2"}},
  {"name": "Nothing"}
]}`

func TestRecommend(t *testing.T) {
	var gotLang, gotMood, gotURL, gotAuth string
	var gotImage []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotLang = r.FormValue("language")
		gotMood = r.FormValue("mood")
		gotURL = r.FormValue("image_url")
		gotAuth = r.Header.Get("Authorization")
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			gotImage, _ = io.ReadAll(f)
			if hdr.Filename != "image.jpg" {
				t.Errorf("filename = %q", hdr.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, spotifyBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	tracks, err := c.Recommend(context.Background(), workflow.RecommendRequest{
		Image:       []byte("jpeg-bytes"),
		ContentType: "image/jpeg",
		ImageURL:    "https://cdn/x.jpg",
		Language:    workflow.LanguageKorean,
	})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if gotLang != "ko" || gotMood != "" || gotURL != "https://cdn/x.jpg" {
		t.Errorf("form = lang %q mood %q url %q", gotLang, gotMood, gotURL)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if string(gotImage) != "jpeg-bytes" {
		t.Errorf("image = %q", gotImage)
	}

	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	first := tracks[0]
	if first.ID != "t1" || first.Name != "Hype Boy" || first.AlbumArtURL != "https://i.scdn.co/1.jpg" ||
		first.PreviewURL != "https://p.scdn.co/1.mp3" || first.ExternalURL != "https://open.spotify.com/track/t1" {
		t.Errorf("first track = %+v", first)
	}
	if len(first.ArtistNames) != 1 || first.ArtistNames[0] != "NewJeans" {
		t.Errorf("artists = %v", first.ArtistNames)
	}
	if tracks[1].Key() != "https://open.spotify.com/track/t2" {
		t.Errorf("second track key = %q", tracks[1].Key())
	}
}

func TestRecommendEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"tracks": []}`)
	}))
	defer srv.Close()

	tracks, err := NewClient(srv.URL, "").Recommend(context.Background(), workflow.RecommendRequest{Image: []byte("x")})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("len(tracks) = %d", len(tracks))
	}
}

func TestRecommendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Recommend(context.Background(), workflow.RecommendRequest{Image: []byte("x")})
	if err == nil {
		t.Fatal("Recommend() expected error")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model is loading") {
		t.Errorf("error = %v, want status and body", err)
	}
}

func TestRecommendBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>oops</html>`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Recommend(context.Background(), workflow.RecommendRequest{Image: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Errorf("error = %v", err)
	}
}

func TestRecommendCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(srv.URL, "").Recommend(ctx, workflow.RecommendRequest{Image: []byte("x")}); err == nil {
		t.Fatal("Recommend() expected error for cancelled context")
	}
}
