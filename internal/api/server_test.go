package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/moodmatch/internal/auth"
	"github.com/fpang/moodmatch/internal/metrics"
	"github.com/fpang/moodmatch/internal/objstore"
	"github.com/fpang/moodmatch/internal/preview"
	"github.com/fpang/moodmatch/internal/store"
	"github.com/fpang/moodmatch/internal/workflow"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type fakeRecommender struct {
	mu     sync.Mutex
	tracks []workflow.Track
	err    error
}

func (f *fakeRecommender) Recommend(ctx context.Context, req workflow.RecommendRequest) ([]workflow.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracks, f.err
}

type fakeCaptioner struct{ caption string }

func (f fakeCaptioner) Generate(ctx context.Context, req workflow.CaptionRequest) (string, error) {
	return f.caption, nil
}

type fakeHandle struct {
	io.Reader
	url string
}

func (h *fakeHandle) Close() error        { return nil }
func (h *fakeHandle) ContentType() string { return "audio/mpeg" }
func (h *fakeHandle) URL() string         { return h.url }

type fakePlayer struct{}

func (fakePlayer) Open(ctx context.Context, url string) (preview.Handle, error) {
	return &fakeHandle{Reader: strings.NewReader("ID3-audio-from-" + url), url: url}, nil
}

type testEnv struct {
	srv      *httptest.Server
	server   *Server
	store    *store.MemoryStore
	rec      *fakeRecommender
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	verifier, err := auth.NewVerifier([]byte("test-secret"), "moodmatch")
	require.NoError(t, err)

	env := &testEnv{
		store:    store.NewMemoryStore(),
		verifier: verifier,
		rec: &fakeRecommender{tracks: []workflow.Track{
			{ID: "t1", Name: "Spring Day", ArtistNames: []string{"BTS"}, PreviewURL: "https://p.test/t1.mp3"},
			{ID: "t2", Name: "Hype Boy", ArtistNames: []string{"NewJeans"}},
			{ID: "t3", Name: "Love Dive", ArtistNames: []string{"IVE"}},
			{ID: "t4", Name: "Ditto", ArtistNames: []string{"NewJeans"}},
		}},
	}
	objects := objstore.NewFSStore(afero.NewMemMapFs(), "/media", "https://cdn.test")

	o := Options{
		Verifier: verifier,
		Store:    env.store,
		NewWorkflow: func(user workflow.User, p workflow.Picker) *workflow.Workflow {
			return workflow.New(user, workflow.Deps{
				Objects:     objects,
				Recommender: env.rec,
				Captioner:   fakeCaptioner{caption: "봄날"},
				Documents:   env.store,
				Picker:      p,
				Player:      fakePlayer{},
			})
		},
		Version: "test",
	}
	for _, fn := range opts {
		fn(&o)
	}
	env.server = New(o)
	env.srv = httptest.NewServer(env.server.Handler())
	t.Cleanup(func() {
		env.srv.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) token(t *testing.T, user workflow.User) string {
	t.Helper()
	tok, err := e.verifier.Issue(user, time.Hour)
	require.NoError(t, err)
	return tok
}

type result struct {
	Status int
	Body   map[string]json.RawMessage
	State  workflow.State
	Raw    []byte
}

func (e *testEnv) do(t *testing.T, token, method, path string, body io.Reader, contentType string) result {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	res := result{Status: resp.StatusCode}
	res.Raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(res.Raw, &res.Body)
		if raw, ok := res.Body["state"]; ok {
			require.NoError(t, json.Unmarshal(raw, &res.State))
		}
	}
	return res
}

func (e *testEnv) doJSON(t *testing.T, token, method, path string, v interface{}) result {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, token, method, path, body, "application/json")
}

func (e *testEnv) createSession(t *testing.T, token string) string {
	t.Helper()
	res := e.doJSON(t, token, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, res.Status, string(res.Raw))
	var id string
	require.NoError(t, json.Unmarshal(res.Body["sessionId"], &id))
	return id
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, "", http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `"test"`, string(res.Body["version"]))
}

func TestFullPostFlow(t *testing.T) {
	env := newTestEnv(t)
	user := workflow.User{ID: "u1", LoginID: "jane.doe@example.com"}
	tok := env.token(t, user)
	id := env.createSession(t, tok)
	base := "/api/sessions/" + id

	res := env.do(t, tok, http.MethodPost, base+"/image?source=library", bytes.NewReader(pngBytes(t)), "image/png")
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageImageUploaded, res.State.Stage)
	assert.Equal(t, 100, res.State.UploadProgress)
	assert.True(t, strings.HasPrefix(res.State.UploadedImageURL, "https://cdn.test/posts/u1/"))
	require.NotNil(t, res.State.SourceImage)
	assert.Equal(t, 64, res.State.SourceImage.Width)

	res = env.doJSON(t, tok, http.MethodPut, base+"/preferences", map[string]string{"language": "Korean", "mood": "calm"})
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageSelectingPreferences, res.State.Stage)
	assert.Equal(t, workflow.LanguageKorean, res.State.Preferences.Language)

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/fetch", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageSelectingSong, res.State.Stage)
	assert.Len(t, res.State.CandidateTracks, 4)

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/confirm", nil)
	assert.Equal(t, http.StatusConflict, res.Status, "confirm without a highlighted song")
	assert.JSONEq(t, `"validation"`, string(res.Body["kind"]))
	assert.Equal(t, workflow.StageSelectingSong, res.State.Stage)

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/preview", map[string]string{"trackId": "t1"})
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	require.NotNil(t, res.State.PreviewSelection)
	assert.Equal(t, "t1", res.State.PreviewSelection.ID)

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/play", map[string]string{"trackId": "t1"})
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.True(t, res.State.PreviewPlaying)

	res = env.do(t, tok, http.MethodGet, base+"/songs/preview-audio", nil, "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ID3-audio-from-https://p.test/t1.mp3", string(res.Raw))

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/confirm", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageSongConfirmed, res.State.Stage)
	assert.False(t, res.State.PreviewPlaying, "confirming releases the preview")

	res = env.doJSON(t, tok, http.MethodPost, base+"/caption", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	require.NotNil(t, res.State.CaptionSuggestion)
	assert.Equal(t, "봄날", *res.State.CaptionSuggestion)

	res = env.doJSON(t, tok, http.MethodPost, base+"/caption/confirm", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageBothConfirmed, res.State.Stage)

	res = env.doJSON(t, tok, http.MethodPost, base+"/publish", nil)
	require.Equal(t, http.StatusCreated, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageInitial, res.State.Stage)
	var post store.Post
	require.NoError(t, json.Unmarshal(res.Body["post"], &post))
	assert.Equal(t, "jane.doe", post.AuthorDisplayName)
	require.NotNil(t, post.Song)
	assert.Equal(t, "t1", post.Song.ID)
	assert.Equal(t, 1, env.store.PostCount())

	res = env.do(t, tok, http.MethodGet, "/api/posts/"+post.ID, nil, "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `"봄날"`, string(res.Body["caption"]))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	res := env.doJSON(t, "", http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res = env.doJSON(t, "garbage", http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
}

func TestSessionsAreOwned(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, workflow.User{ID: "u1"})
	other := env.token(t, workflow.User{ID: "u2"})
	id := env.createSession(t, owner)

	assert.Equal(t, http.StatusOK, env.do(t, owner, http.MethodGet, "/api/sessions/"+id, nil, "").Status)
	assert.Equal(t, http.StatusNotFound, env.do(t, other, http.MethodGet, "/api/sessions/"+id, nil, "").Status)
	assert.Equal(t, http.StatusNotFound, env.do(t, owner, http.MethodGet, "/api/sessions/not-a-uuid", nil, "").Status)

	assert.Equal(t, http.StatusNotFound, env.do(t, other, http.MethodDelete, "/api/sessions/"+id, nil, "").Status)
	assert.Equal(t, http.StatusNoContent, env.do(t, owner, http.MethodDelete, "/api/sessions/"+id, nil, "").Status)
	assert.Equal(t, http.StatusNotFound, env.do(t, owner, http.MethodGet, "/api/sessions/"+id, nil, "").Status)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, workflow.User{ID: "u1"})
	id := env.createSession(t, tok)
	base := "/api/sessions/" + id

	res := env.doJSON(t, tok, http.MethodPost, base+"/image/denied?source=camera", nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.JSONEq(t, `"permission_denied"`, string(res.Body["kind"]))
	assert.Equal(t, workflow.StageInitial, res.State.Stage)
	assert.Empty(t, res.State.Error, "permission errors are not stored in state")

	res = env.do(t, tok, http.MethodPost, base+"/image?source=tripod", bytes.NewReader(pngBytes(t)), "image/png")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = env.do(t, tok, http.MethodPost, base+"/image", strings.NewReader("%PDF-1.4 not a photo"), "application/pdf")
	assert.Equal(t, http.StatusConflict, res.Status)

	res = env.do(t, tok, http.MethodPost, base+"/image", bytes.NewReader(pngBytes(t)), "image/png")
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))

	env.rec.mu.Lock()
	env.rec.err = errors.New("upstream exploded: shard-7 unreachable")
	env.rec.mu.Unlock()
	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.JSONEq(t, `"transport"`, string(res.Body["kind"]))
	assert.Equal(t, workflow.StageSelectingPreferences, res.State.Stage)
	assert.NotEmpty(t, res.State.Error)
	assert.NotContains(t, string(res.Raw), "shard-7", "internal details stay server-side")

	res = env.doJSON(t, tok, http.MethodPut, base+"/preferences", map[string]string{"mood": "grumpy"})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/preview", map[string]string{"trackId": "nope"})
	assert.Equal(t, http.StatusConflict, res.Status)

	res = env.do(t, tok, http.MethodGet, base+"/songs/preview-audio", nil, "")
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = env.doJSON(t, tok, http.MethodPost, base+"/publish", nil)
	assert.Equal(t, http.StatusConflict, res.Status)

	res = env.doJSON(t, tok, http.MethodPost, base+"/discard", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, workflow.StageInitial, res.State.Stage)
	assert.Nil(t, res.State.SourceImage)
}

func TestBackToConfirmedCaption(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, workflow.User{ID: "u1"})
	id := env.createSession(t, tok)
	base := "/api/sessions/" + id

	res := env.do(t, tok, http.MethodPost, base+"/image", bytes.NewReader(pngBytes(t)), "image/png")
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))

	res = env.doJSON(t, tok, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, res.Status, "nothing chosen yet")

	res = env.doJSON(t, tok, http.MethodPost, base+"/caption", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	res = env.doJSON(t, tok, http.MethodPost, base+"/caption/confirm", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))

	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/fetch", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageSelectingSong, res.State.Stage)

	res = env.doJSON(t, tok, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.Equal(t, workflow.StageCaptionConfirmed, res.State.Stage)
	require.NotNil(t, res.State.ChosenCaption)

	env.rec.mu.Lock()
	env.rec.err = errors.New("recommender down")
	env.rec.mu.Unlock()
	res = env.doJSON(t, tok, http.MethodPost, base+"/songs/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, res.Status)
	assert.Equal(t, workflow.StageCaptionConfirmed, res.State.Stage)

	res = env.doJSON(t, tok, http.MethodPost, base+"/publish", nil)
	require.Equal(t, http.StatusCreated, res.Status, string(res.Raw))
	var post store.Post
	require.NoError(t, json.Unmarshal(res.Body["post"], &post))
	require.NotNil(t, post.Caption)
	assert.Equal(t, "봄날", *post.Caption)
	assert.Nil(t, post.Song)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, workflow.User{ID: "u1", LoginID: "jane@example.com"})

	res := env.do(t, tok, http.MethodGet, "/api/profile", nil, "")
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `"u1"`, string(res.Body["userId"]))

	res = env.doJSON(t, tok, http.MethodPut, "/api/profile", map[string]string{"displayName": " Jane ", "userId": "someone-else"})
	require.Equal(t, http.StatusOK, res.Status, string(res.Raw))
	assert.JSONEq(t, `"Jane"`, string(res.Body["displayName"]))
	assert.JSONEq(t, `"u1"`, string(res.Body["userId"]))

	profile, err := env.store.GetUserProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Jane", profile.DisplayName)

	assert.Equal(t, http.StatusNotFound, env.do(t, tok, http.MethodGet, "/api/posts/missing", nil, "").Status)
}

func TestOriginVerify(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.OriginVerifySecret = "cf-secret" })

	res := env.do(t, "", http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusForbidden, res.Status)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/health", nil)
	req.Header.Set(OriginVerifyHeader, "cf-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AllowedOrigins = []string{"https://app.moodmatch.test"} })

	for origin, allowed := range map[string]bool{
		"https://app.moodmatch.test": true,
		"https://evil.test":          false,
		"http://localhost:3000":      false,
	} {
		req, _ := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/sessions", nil)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, allowed, resp.Header.Get("Access-Control-Allow-Origin") == origin, origin)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/health": "/api/health",
		"/api/sessions": "/api/sessions",
		"/api/sessions/0b8f6a52-1c9e-4f7a-9a51-2f3c4d5e6f70/songs/next": "/api/sessions/*/songs/next",
		"/api/posts/01HZY3K6Q0S9V8W7X6Y5Z4A3B2":                        "/api/posts/*",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeEndpoint(in), in)
	}
}
