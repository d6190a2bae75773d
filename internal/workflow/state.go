package workflow

import "github.com/fpang/moodmatch/internal/store"

// PageSize is the number of candidate tracks visible at once.
const PageSize = 3

// Source is where a photo is picked from.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceLibrary Source = "library"
)

// Track is a song candidate returned by the recommendation service.
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ArtistNames []string `json:"artistNames"`
	AlbumArtURL string   `json:"albumArtUrl,omitempty"`
	PreviewURL  string   `json:"previewUrl,omitempty"`
	ExternalURL string   `json:"externalUrl,omitempty"`
}

// Key identifies a track within a candidate list. Services that omit the ID
// still return the external URL.
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.ExternalURL
}

// Song converts the track into the reference stored on a post.
func (t Track) Song() *store.Song {
	return &store.Song{
		ID:          t.Key(),
		Name:        t.Name,
		ArtistNames: append([]string(nil), t.ArtistNames...),
		AlbumArtURL: t.AlbumArtURL,
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURL,
	}
}

// SourceImage is the photo the user picked. Data stays in memory until the
// session is reset.
type SourceImage struct {
	URI         string `json:"uri"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// State is a snapshot of one post-creation session.
type State struct {
	Stage             Stage        `json:"stage"`
	SourceImage       *SourceImage `json:"sourceImage,omitempty"`
	UploadedImageURL  string       `json:"uploadedImageUrl,omitempty"`
	UploadProgress    int          `json:"uploadProgress"`
	Preferences       Preferences  `json:"preferences"`
	CandidateTracks   []Track      `json:"candidateTracks"`
	WindowStart       int          `json:"windowStart"`
	PreviewSelection  *Track       `json:"previewSelection,omitempty"`
	CaptionSuggestion *string      `json:"captionSuggestion,omitempty"`
	ChosenSong        *Track       `json:"chosenSong,omitempty"`
	ChosenCaption     *string      `json:"chosenCaption,omitempty"`
	Error             string       `json:"error,omitempty"`
	StatusMessage     string       `json:"statusMessage,omitempty"`

	// Pending names the network operation in flight, if any.
	Pending        string `json:"pending,omitempty"`
	Generation     uint64 `json:"generation"`
	PreviewPlaying bool   `json:"previewPlaying"`
}

// Page returns the candidate tracks in the current viewing window.
func (s State) Page() []Track {
	if s.WindowStart >= len(s.CandidateTracks) {
		return nil
	}
	end := min(s.WindowStart+PageSize, len(s.CandidateTracks))
	return s.CandidateTracks[s.WindowStart:end]
}

// HasSelection reports whether a song or a caption has been confirmed,
// whichever stage the session is currently in.
func (s State) HasSelection() bool {
	return s.ChosenSong != nil || s.ChosenCaption != nil
}

// settledStage is the confirmed stage matching the held selections, or
// fallback when nothing has been chosen.
func (s State) settledStage(fallback Stage) Stage {
	if !s.HasSelection() {
		return fallback
	}
	return confirmedStage(s.ChosenSong != nil, s.ChosenCaption != nil)
}

// clone returns a deep copy safe to hand to callers.
func (s State) clone() State {
	out := s
	if s.SourceImage != nil {
		img := *s.SourceImage
		out.SourceImage = &img
	}
	if s.CandidateTracks != nil {
		out.CandidateTracks = make([]Track, len(s.CandidateTracks))
		for i, t := range s.CandidateTracks {
			out.CandidateTracks[i] = cloneTrack(t)
		}
	}
	out.PreviewSelection = cloneTrackPtr(s.PreviewSelection)
	out.ChosenSong = cloneTrackPtr(s.ChosenSong)
	out.CaptionSuggestion = cloneString(s.CaptionSuggestion)
	out.ChosenCaption = cloneString(s.ChosenCaption)
	return out
}

func cloneTrack(t Track) Track {
	t.ArtistNames = append([]string(nil), t.ArtistNames...)
	return t
}

func cloneTrackPtr(t *Track) *Track {
	if t == nil {
		return nil
	}
	c := cloneTrack(*t)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
