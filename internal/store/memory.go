package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process PostStore.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]Post
	profiles map[string]Profile
	idemp    map[string]string // idempotency key -> post ID
	now      func() time.Time
}

var _ PostStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]Post),
		profiles: make(map[string]Profile),
		idemp:    make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) CreatePost(ctx context.Context, post *Post, idempotencyKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(post); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := m.idemp[idempotencyKey]; ok {
			post.ID = id
			post.CreatedAt = m.posts[id].CreatedAt
			return nil
		}
	}

	post.ID = NewPostID()
	post.CreatedAt = m.now().UTC()
	m.posts[post.ID] = clonePost(*post)
	if idempotencyKey != "" {
		m.idemp[idempotencyKey] = post.ID
	}
	return nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	out := clonePost(p)
	return &out, nil
}

func (m *MemoryStore) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) PutUserProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = *profile
	return nil
}

// PostCount returns the number of stored posts.
func (m *MemoryStore) PostCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.posts)
}

func clonePost(p Post) Post {
	if p.Caption != nil {
		c := *p.Caption
		p.Caption = &c
	}
	if p.Song != nil {
		s := *p.Song
		s.ArtistNames = append([]string(nil), s.ArtistNames...)
		p.Song = &s
	}
	p.LikedByUserIDs = append([]string{}, p.LikedByUserIDs...)
	return p
}
