// Package recommend is the HTTP client for the song recommendation model.
//
// The service takes a photo (multipart field "image") plus optional
// "language" and "mood" form fields and answers with Spotify-shaped tracks:
//
//	{"tracks": [{"id": "...", "name": "...", "artists": [{"name": "..."}],
//	  "album": {"images": [{"url": "..."}]}, "preview_url": "...",
//	  "external_urls": {"spotify": "..."}}]}
//
// Any non-2xx status is a failure carrying the response body as diagnostic
// text. An empty tracks array is a valid answer.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/fpang/moodmatch/internal/imageutil"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout covers model inference on a cold endpoint.
	defaultTimeout = 60 * time.Second

	// maxResponseBytes bounds how much of a response is read.
	maxResponseBytes = 4 << 20
)

// Client calls the recommendation endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

var _ workflow.RecommendationService = (*Client)(nil)

// NewClient creates a client for endpoint. apiKey, when set, is sent as a
// bearer token.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// --- API response types ---

type apiResponse struct {
	Tracks []apiTrack `json:"tracks"`
}

type apiTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	PreviewURL   string `json:"preview_url"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (t apiTrack) toTrack() workflow.Track {
	out := workflow.Track{
		ID:          t.ID,
		Name:        t.Name,
		ArtistNames: make([]string, 0, len(t.Artists)),
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs.Spotify,
	}
	for _, a := range t.Artists {
		out.ArtistNames = append(out.ArtistNames, a.Name)
	}
	if len(t.Album.Images) > 0 {
		out.AlbumArtURL = t.Album.Images[0].URL
	}
	return out
}

// Recommend posts the photo and filters and returns the ranked tracks.
// Tracks with neither an ID nor an external URL are dropped.
func (c *Client) Recommend(ctx context.Context, req workflow.RecommendRequest) ([]workflow.Track, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Int("imageBytes", len(req.Image)).
		Str("language", string(req.Language)).
		Str("mood", string(req.Mood)).
		Msg("Recommendation request")

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Recommendation response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()
	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Recommendation response")

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("recommendation service returned %d: %s",
			httpResp.StatusCode, truncate(strings.TrimSpace(string(raw)), 200))
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(raw), 200))
	}

	tracks := make([]workflow.Track, 0, len(resp.Tracks))
	for _, t := range resp.Tracks {
		track := t.toTrack()
		if track.Key() == "" {
			log.Warn().Str("name", t.Name).Msg("Dropping track without identity")
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func encodeForm(req workflow.RecommendRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ct := req.ContentType
	if ct == "" {
		ct = imageutil.DetectContentType(req.Image)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="image`+imageutil.Extension(ct)+`"`)
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"language":  string(req.Language),
		"mood":      string(req.Mood),
		"image_url": req.ImageURL,
	}
	for _, name := range []string{"language", "mood", "image_url"} {
		if v := fields[name]; v != "" {
			if err := mw.WriteField(name, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
